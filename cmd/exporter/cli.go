package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"pms-exporter/internal/infra"
)

// cli holds command-line overrides. Empty values leave the environment and
// config file settings untouched.
type cli struct {
	Config      string `name:"config" env:"CONFIG_FILE" help:"TOML file overlaid on the environment configuration."`
	Source      string `name:"source" help:"Byte source: serial, tcp, file or simulate."`
	Device      string `name:"device" help:"Serial device path."`
	Baud        string `name:"baud" help:"Serial baud rate."`
	Address     string `name:"address" help:"host:port for tcp, capture path for file."`
	SkipStartup string `name:"skip-startup" help:"Drop the first two frame markers after the port opens (true/false)."`
	HTTPPort    string `name:"http-port" help:"Port for /metrics, /health and /readings."`
	GRPCPort    string `name:"grpc-port" help:"Port for the gRPC health service."`
	MetricsPort string `name:"metrics-port" help:"Port for operational metrics, empty string keeps the default."`
	LogLevel    string `name:"log-level" help:"debug, info, warn or error."`
}

func newParser(c *cli, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("pms-exporter"),
		kong.Description("Reads a PMS5003 particulate sensor and exports its readings to Prometheus."),
	}, options...)
	return kong.New(c, options...)
}

func parseCLI(args []string, options ...kong.Option) (cli, error) {
	var c cli
	parser, err := newParser(&c, options...)
	if err != nil {
		return cli{}, err
	}
	if _, err := parser.Parse(args); err != nil {
		return cli{}, err
	}
	return c, nil
}

// apply layers the config file and then the explicit flags over cfg.
func (c cli) apply(cfg infra.Config) (infra.Config, error) {
	if path := strings.TrimSpace(c.Config); path != "" {
		loaded, err := infra.LoadConfigFile(path, cfg)
		if err != nil {
			return infra.Config{}, err
		}
		cfg = loaded
	}

	if c.Source != "" {
		cfg.Source = strings.ToLower(strings.TrimSpace(c.Source))
	}
	if c.Device != "" {
		cfg.SerialDevice = c.Device
	}
	if c.Baud != "" {
		baud, err := strconv.Atoi(c.Baud)
		if err != nil || baud <= 0 {
			return infra.Config{}, fmt.Errorf("invalid --baud %q", c.Baud)
		}
		cfg.SerialBaud = baud
	}
	if c.Address != "" {
		cfg.SourceAddress = c.Address
	}
	if c.SkipStartup != "" {
		skip, err := strconv.ParseBool(c.SkipStartup)
		if err != nil {
			return infra.Config{}, fmt.Errorf("invalid --skip-startup %q", c.SkipStartup)
		}
		cfg.SkipStartupArtifacts = skip
	}
	if c.HTTPPort != "" {
		cfg.HTTPPort = c.HTTPPort
	}
	if c.GRPCPort != "" {
		cfg.GRPCPort = c.GRPCPort
	}
	if c.MetricsPort != "" {
		cfg.MetricsPort = c.MetricsPort
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	return cfg, nil
}
