package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Airbridge AirbridgeConfig `yaml:"airbridge"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Links     LinksConfig     `yaml:"links"`
	Reports   ReportsConfig   `yaml:"reports"`
	NATS      NATSConfig      `yaml:"nats"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// AccessToken gates the dashboard API when set.
	AccessToken string `yaml:"access_token"`
}

// DatabaseConfig points at Postgres. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type AirbridgeConfig struct {
	BaseURL         string        `yaml:"base_url"`
	AppName         string        `yaml:"app_name"`
	APIToken        string        `yaml:"api_token"`
	Channel         string        `yaml:"channel"`
	FallbackURL     string        `yaml:"fallback_url"`
	Timeout         time.Duration `yaml:"timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxAttempts int           `yaml:"poll_max_attempts"`
}

type SheetsConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	SpreadsheetID string        `yaml:"spreadsheet_id"`
	Range         string        `yaml:"range"`
	Timeout       time.Duration `yaml:"timeout"`
}

type LinksConfig struct {
	BulkConcurrency int `yaml:"bulk_concurrency"`
	MaxBulkTasks    int `yaml:"max_bulk_tasks"`
}

type ReportsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// WorkerConfig sizes the worker pool and its gRPC batch service. The API
// server submits batches over gRPC when GRPCAddr is set and NATS is off.
type WorkerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	GRPCPort    string `yaml:"grpc_port"`
	Count       int    `yaml:"count"`
	QueueSize   int    `yaml:"queue_size"`
	StatusLimit int    `yaml:"status_limit"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the baseline configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Airbridge: AirbridgeConfig{
			BaseURL:         "https://api.airbridge.io",
			Channel:         "mart_poster",
			Timeout:         15 * time.Second,
			PollInterval:    time.Second,
			PollMaxAttempts: 20,
		},
		Sheets: SheetsConfig{
			BaseURL: "https://sheets.googleapis.com",
			Range:   "marts!A1:D",
			Timeout: 15 * time.Second,
		},
		Links: LinksConfig{
			BulkConcurrency: 5,
			MaxBulkTasks:    500,
		},
		Reports: ReportsConfig{
			CacheTTL: 10 * time.Minute,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Worker: WorkerConfig{
			GRPCPort:    "8081",
			Count:       2,
			QueueSize:   32,
			StatusLimit: 1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("ACCESS_TOKEN"); v != "" {
		c.Server.AccessToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("AIRBRIDGE_API_TOKEN"); v != "" {
		c.Airbridge.APIToken = v
	}
	if v := os.Getenv("AIRBRIDGE_APP_NAME"); v != "" {
		c.Airbridge.AppName = v
	}
	if v := os.Getenv("SHEETS_API_KEY"); v != "" {
		c.Sheets.APIKey = v
	}
	if v := os.Getenv("SHEETS_SPREADSHEET_ID"); v != "" {
		c.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("USE_NATS"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.NATS.Enabled = enabled
		}
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("WORKER_GRPC_ADDR"); v != "" {
		c.Worker.GRPCAddr = v
	}
	if v := os.Getenv("WORKER_GRPC_PORT"); v != "" {
		c.Worker.GRPCPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate ensures required fields are present and sane.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("config: server.port is required")
	}
	if c.Links.BulkConcurrency < 1 {
		return errors.New("config: links.bulk_concurrency must be at least 1")
	}
	if c.Links.MaxBulkTasks < 1 {
		return errors.New("config: links.max_bulk_tasks must be at least 1")
	}
	if c.Airbridge.PollMaxAttempts < 1 {
		return errors.New("config: airbridge.poll_max_attempts must be at least 1")
	}
	if c.Airbridge.PollInterval <= 0 {
		return errors.New("config: airbridge.poll_interval must be positive")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("config: nats.url is required when nats is enabled")
	}
	if c.Worker.GRPCPort == "" {
		return errors.New("config: worker.grpc_port is required")
	}
	if c.Worker.Count < 1 || c.Worker.QueueSize < 1 {
		return errors.New("config: worker.count and worker.queue_size must be at least 1")
	}
	return nil
}
