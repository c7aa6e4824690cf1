package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig represents the host application's configuration, the part
// of it the SQL connection pool reads at bootstrap.
type ServerConfig struct {
	Environment string           `yaml:"environment"`
	WebRootPath string           `yaml:"web_root_path"`
	Databases   []DatabaseConfig `yaml:"databases"`
	Logging     LoggingConfig    `yaml:"logging"`
	Pool        PoolConfig       `yaml:"connection_pool"`
}

// DatabaseConfig represents one configured database's settings, read once
// and applied to every slot registered for that database index.
type DatabaseConfig struct {
	DriverType         string `yaml:"driver_type"`
	DatabaseName       string `yaml:"database_name"`
	HostName           string `yaml:"host_name"`
	Port               int    `yaml:"port"`
	UserName           string `yaml:"user_name"`
	Password           string `yaml:"password"`
	ConnectOptions     string `yaml:"connect_options"`
	PostOpenStatements string `yaml:"post_open_statements"`
	EnableUpsert       bool   `yaml:"enable_upsert"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PoolConfig represents the connection pool's own tuning knobs.
type PoolConfig struct {
	MaxWorkersPerServer   int `yaml:"max_workers_per_server"`
	ReaperIntervalSeconds int `yaml:"reaper_interval_seconds"`
	IdleThresholdSeconds  int `yaml:"idle_threshold_seconds"`
}

// DefaultConfig returns the configuration used when no config file is given.
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Environment: "development",
		WebRootPath: "./",
		Databases: []DatabaseConfig{
			{
				DriverType:   "sqlite3",
				DatabaseName: "data/pool.db",
				EnableUpsert: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Pool: PoolConfig{
			MaxWorkersPerServer:   16,
			ReaperIntervalSeconds: 10,
			IdleThresholdSeconds:  30,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*ServerConfig, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string, cfg *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *ServerConfig) {
	if env := os.Getenv("SQLPOOL_ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}

	if root := os.Getenv("SQLPOOL_WEB_ROOT"); root != "" {
		cfg.WebRootPath = root
	}

	if logLevel := os.Getenv("SQLPOOL_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("SQLPOOL_LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if maxWorkers := os.Getenv("SQLPOOL_MAX_WORKERS"); maxWorkers != "" {
		if val, err := strconv.Atoi(maxWorkers); err == nil {
			cfg.Pool.MaxWorkersPerServer = val
		}
	}
}

// Validate validates the configuration.
func (c *ServerConfig) Validate() error {
	if c.Pool.MaxWorkersPerServer < 1 {
		return fmt.Errorf("connection_pool.max_workers_per_server must be at least 1")
	}

	if c.Pool.ReaperIntervalSeconds < 5 || c.Pool.ReaperIntervalSeconds > 15 {
		return fmt.Errorf("connection_pool.reaper_interval_seconds must be between 5 and 15")
	}

	if c.Pool.IdleThresholdSeconds < 1 {
		return fmt.Errorf("connection_pool.idle_threshold_seconds must be positive")
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// isValidLogLevel checks if the log level is valid.
func isValidLogLevel(level string) bool {
	valid := []string{"debug", "info", "warn", "error"}
	level = strings.ToLower(level)
	for _, v := range valid {
		if level == v {
			return true
		}
	}
	return false
}

// String returns a string representation of the configuration (for logging).
func (c *ServerConfig) String() string {
	return fmt.Sprintf("Config{Environment: %s, Databases: %d, MaxWorkers: %d, LogLevel: %s}",
		c.Environment, len(c.Databases), c.Pool.MaxWorkersPerServer, c.Logging.Level)
}
