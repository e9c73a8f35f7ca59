package infra

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Source               string
	SerialDevice         string
	SerialBaud           int
	SourceAddress        string
	SkipStartupArtifacts bool
	ReadBufferSize       int
	MaxBufferedBytes     int
	ReadingBufferSize    int

	HTTPPort    string
	GRPCPort    string
	MetricsPort string

	DatabaseDSN             string
	DatabaseHost            string
	DatabasePort            string
	DatabaseUser            string
	DatabasePassword        string
	DatabaseName            string
	DatabaseBatchSize       int
	DatabaseBatchTimeoutMS  int
	DatabaseBatchBufferSize int
	MemoryHistorySize       int

	SimulatorIntervalMillis int
	SimulatorNoiseBytes     int
	SimulatorCorruptEvery   int
	LogLevel                string
}

// defaultSkipStartup is true where the serial driver is known to replay
// stale bytes right after the port opens.
func defaultSkipStartup() bool {
	return runtime.GOOS == "darwin"
}

func LoadConfig() Config {
	return Config{
		Source:                  strings.ToLower(getEnv("SOURCE", "serial")),
		SerialDevice:            getEnv("SERIAL_DEVICE", "/dev/ttyUSB0"),
		SerialBaud:              getEnvInt("SERIAL_BAUD", 9600),
		SourceAddress:           os.Getenv("SOURCE_ADDRESS"),
		SkipStartupArtifacts:    getEnvBool("SKIP_STARTUP_ARTIFACTS", defaultSkipStartup()),
		ReadBufferSize:          getEnvInt("READ_BUFFER", 256),
		MaxBufferedBytes:        getEnvInt("MAX_BUFFERED_BYTES", 4096),
		ReadingBufferSize:       getEnvInt("READING_BUFFER", 16),
		HTTPPort:                getEnv("HTTP_PORT", "9184"),
		GRPCPort:                getEnv("GRPC_PORT", "50051"),
		MetricsPort:             getEnv("METRICS_PORT", "2112"),
		DatabaseDSN:             os.Getenv("DB_DSN"),
		DatabaseHost:            os.Getenv("DB_HOST"),
		DatabasePort:            os.Getenv("DB_PORT"),
		DatabaseUser:            os.Getenv("DB_USER"),
		DatabasePassword:        os.Getenv("DB_PASSWORD"),
		DatabaseName:            os.Getenv("DB_NAME"),
		DatabaseBatchSize:       getEnvInt("DB_BATCH_SIZE", 32),
		DatabaseBatchTimeoutMS:  getEnvInt("DB_BATCH_TIMEOUT_MS", 250),
		DatabaseBatchBufferSize: getEnvInt("DB_BATCH_BUFFER", 128),
		MemoryHistorySize:       getEnvInt("MEMORY_HISTORY", 1024),
		SimulatorIntervalMillis: getEnvInt("SIMULATOR_INTERVAL_MS", 1000),
		SimulatorNoiseBytes:     getEnvInt("SIMULATOR_NOISE_BYTES", 0),
		SimulatorCorruptEvery:   getEnvInt("SIMULATOR_CORRUPT_EVERY", 0),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
	}
}

type fileConfig struct {
	Source                string `toml:"source"`
	SerialDevice          string `toml:"serial_device"`
	SerialBaud            int    `toml:"serial_baud"`
	SourceAddress         string `toml:"source_address"`
	SkipStartupArtifacts  bool   `toml:"skip_startup_artifacts"`
	ReadBufferSize        int    `toml:"read_buffer"`
	MaxBufferedBytes      int    `toml:"max_buffered_bytes"`
	HTTPPort              int    `toml:"http_port"`
	GRPCPort              int    `toml:"grpc_port"`
	MetricsPort           int    `toml:"metrics_port"`
	DatabaseDSN           string `toml:"db_dsn"`
	MemoryHistorySize     int    `toml:"memory_history"`
	SimulatorIntervalMS   int    `toml:"simulator_interval_ms"`
	SimulatorNoiseBytes   int    `toml:"simulator_noise_bytes"`
	SimulatorCorruptEvery int    `toml:"simulator_corrupt_every"`
	LogLevel              string `toml:"log_level"`
}

// LoadConfigFile overlays the keys present in a TOML file onto cfg. Keys
// absent from the file keep their current value.
func LoadConfigFile(path string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config file: %w", err)
	}

	if meta.IsDefined("source") {
		cfg.Source = strings.ToLower(strings.TrimSpace(raw.Source))
	}
	if meta.IsDefined("serial_device") {
		cfg.SerialDevice = strings.TrimSpace(raw.SerialDevice)
	}
	if meta.IsDefined("serial_baud") {
		cfg.SerialBaud = raw.SerialBaud
	}
	if meta.IsDefined("source_address") {
		cfg.SourceAddress = strings.TrimSpace(raw.SourceAddress)
	}
	if meta.IsDefined("skip_startup_artifacts") {
		cfg.SkipStartupArtifacts = raw.SkipStartupArtifacts
	}
	if meta.IsDefined("read_buffer") {
		cfg.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("max_buffered_bytes") {
		cfg.MaxBufferedBytes = raw.MaxBufferedBytes
	}
	if meta.IsDefined("http_port") {
		cfg.HTTPPort = strconv.Itoa(raw.HTTPPort)
	}
	if meta.IsDefined("grpc_port") {
		cfg.GRPCPort = strconv.Itoa(raw.GRPCPort)
	}
	if meta.IsDefined("metrics_port") {
		cfg.MetricsPort = strconv.Itoa(raw.MetricsPort)
	}
	if meta.IsDefined("db_dsn") {
		cfg.DatabaseDSN = strings.TrimSpace(raw.DatabaseDSN)
	}
	if meta.IsDefined("memory_history") {
		cfg.MemoryHistorySize = raw.MemoryHistorySize
	}
	if meta.IsDefined("simulator_interval_ms") {
		cfg.SimulatorIntervalMillis = raw.SimulatorIntervalMS
	}
	if meta.IsDefined("simulator_noise_bytes") {
		cfg.SimulatorNoiseBytes = raw.SimulatorNoiseBytes
	}
	if meta.IsDefined("simulator_corrupt_every") {
		cfg.SimulatorCorruptEvery = raw.SimulatorCorruptEvery
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config file: unknown key %q", undecoded[0].String())
	}
	return cfg, nil
}

func LogConfig(ctx context.Context, logger *Logger, cfg Config) {
	logger.Printf(ctx, "SOURCE=%s", cfg.Source)
	logger.Printf(ctx, "SERIAL_DEVICE=%s", emptyFallback(cfg.SerialDevice, "(not set)"))
	logger.Printf(ctx, "SERIAL_BAUD=%d", cfg.SerialBaud)
	logger.Printf(ctx, "SOURCE_ADDRESS=%s", emptyFallback(cfg.SourceAddress, "(not set)"))
	logger.Printf(ctx, "SKIP_STARTUP_ARTIFACTS=%t", cfg.SkipStartupArtifacts)
	logger.Printf(ctx, "READ_BUFFER=%d", cfg.ReadBufferSize)
	logger.Printf(ctx, "MAX_BUFFERED_BYTES=%d", cfg.MaxBufferedBytes)
	logger.Printf(ctx, "READING_BUFFER=%d", cfg.ReadingBufferSize)
	logger.Printf(ctx, "HTTP_PORT=%s", cfg.HTTPPort)
	logger.Printf(ctx, "GRPC_PORT=%s", emptyFallback(cfg.GRPCPort, "(disabled)"))
	logger.Printf(ctx, "METRICS_PORT=%s", emptyFallback(cfg.MetricsPort, "(disabled)"))
	if cfg.DatabaseDSN != "" {
		logger.Printf(ctx, "DB_DSN set (length %d)", len(cfg.DatabaseDSN))
	} else {
		logger.Println(ctx, "DB_DSN not provided")
	}
	logger.Printf(ctx, "DB_HOST=%s", emptyFallback(cfg.DatabaseHost, "(not set)"))
	logger.Printf(ctx, "DB_PORT=%s", emptyFallback(cfg.DatabasePort, "(not set)"))
	logger.Printf(ctx, "DB_USER=%s", emptyFallback(cfg.DatabaseUser, "(not set)"))
	if cfg.DatabasePassword != "" {
		logger.Println(ctx, "DB_PASSWORD set (redacted)")
	} else {
		logger.Println(ctx, "DB_PASSWORD not provided")
	}
	logger.Printf(ctx, "DB_NAME=%s", emptyFallback(cfg.DatabaseName, "(not set)"))
	logger.Printf(ctx, "DB_BATCH_SIZE=%d", cfg.DatabaseBatchSize)
	logger.Printf(ctx, "DB_BATCH_TIMEOUT_MS=%d", cfg.DatabaseBatchTimeoutMS)
	logger.Printf(ctx, "DB_BATCH_BUFFER=%d", cfg.DatabaseBatchBufferSize)
	logger.Printf(ctx, "MEMORY_HISTORY=%d", cfg.MemoryHistorySize)
	logger.Printf(ctx, "SIMULATOR_INTERVAL_MS=%d", cfg.SimulatorIntervalMillis)
	logger.Printf(ctx, "SIMULATOR_NOISE_BYTES=%d", cfg.SimulatorNoiseBytes)
	logger.Printf(ctx, "SIMULATOR_CORRUPT_EVERY=%d", cfg.SimulatorCorruptEvery)
	logger.Printf(ctx, "LOG_LEVEL=%s", cfg.LogLevel)
}

// DatabaseConfigured reports whether Postgres history is enabled.
func (c Config) DatabaseConfigured() bool {
	return c.DatabaseDSN != "" || c.DatabaseHost != ""
}

func emptyFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
