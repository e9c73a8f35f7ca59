package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pms-exporter/internal/infra"
)

func baseConfig() infra.Config {
	return infra.Config{
		Source:       "serial",
		SerialDevice: "/dev/ttyUSB0",
		SerialBaud:   9600,
		HTTPPort:     "9184",
		GRPCPort:     "50051",
		MetricsPort:  "2112",
		LogLevel:     "info",
	}
}

func TestParseCLIWithoutFlagsKeepsConfig(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	flags, err := parseCLI(nil)
	require.NoError(t, err)

	cfg, err := flags.apply(baseConfig())
	require.NoError(t, err)
	assert.Equal(t, baseConfig(), cfg)
}

func TestParseCLIOverrides(t *testing.T) {
	t.Log("Шаг 1: разбираем явные флаги")
	t.Setenv("CONFIG_FILE", "")
	flags, err := parseCLI([]string{
		"--source", "TCP",
		"--address", "10.0.0.5:4001",
		"--baud", "115200",
		"--skip-startup", "true",
		"--http-port", "8080",
		"--log-level", "debug",
	})
	require.NoError(t, err)

	t.Log("Шаг 2: применяем их поверх базовой конфигурации")
	cfg, err := flags.apply(baseConfig())
	require.NoError(t, err)

	assert.Equal(t, "tcp", cfg.Source)
	assert.Equal(t, "10.0.0.5:4001", cfg.SourceAddress)
	assert.Equal(t, 115200, cfg.SerialBaud)
	assert.True(t, cfg.SkipStartupArtifacts)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "50051", cfg.GRPCPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialDevice)
}

func TestParseCLIRejectsUnknownFlag(t *testing.T) {
	_, err := parseCLI([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestApplyRejectsInvalidValues(t *testing.T) {
	_, err := cli{Baud: "fast"}.apply(baseConfig())
	assert.ErrorContains(t, err, "--baud")

	_, err = cli{Baud: "-1"}.apply(baseConfig())
	assert.ErrorContains(t, err, "--baud")

	_, err = cli{SkipStartup: "maybe"}.apply(baseConfig())
	assert.ErrorContains(t, err, "--skip-startup")
}

func TestApplyLayersFileBeforeFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.toml")
	require.NoError(t, os.WriteFile(path, []byte("source = \"file\"\nhttp_port = 9999\nserial_device = \"/dev/ttyAMA0\"\n"), 0o600))

	cfg, err := cli{Config: path, HTTPPort: "7000"}.apply(baseConfig())
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Source)
	assert.Equal(t, "/dev/ttyAMA0", cfg.SerialDevice)
	assert.Equal(t, "7000", cfg.HTTPPort)
}

func TestConfigFileFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"warn\"\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	flags, err := parseCLI(nil)
	require.NoError(t, err)
	assert.Equal(t, path, flags.Config)

	cfg, err := flags.apply(baseConfig())
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestApplyMissingConfigFile(t *testing.T) {
	_, err := cli{Config: filepath.Join(t.TempDir(), "missing.toml")}.apply(baseConfig())
	assert.Error(t, err)
}
