// Package config loads process configuration from layered sources: built-in
// defaults, an optional YAML file, then environment variables, in that order
// of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable that points at a config file.
const ConfigPathEnvVar = "MEDIASEARCH_CONFIG"

// Config is the root configuration for every binary in this module. Each
// cmd/ entrypoint reads the subset it needs.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	ObjectStore ObjectStoreConfig `koanf:"objectstore"`
	Queue       QueueConfig       `koanf:"queue"`
	ASR         ASRConfig         `koanf:"asr"`
	Embedder    EmbedderConfig    `koanf:"embedder"`
	VectorIndex VectorIndexConfig `koanf:"vectorindex"`
	Retry       RetryConfig       `koanf:"retry"`
	Logging     LoggingConfig     `koanf:"logging"`
}

type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxConns        int           `koanf:"max_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type ObjectStoreConfig struct {
	RootDir     string        `koanf:"root_dir"`
	Buckets     []string      `koanf:"buckets"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

type QueueConfig struct {
	Backend       string        `koanf:"backend"` // "memory" | "nats"
	NATSURL       string        `koanf:"nats_url"`
	StreamName    string        `koanf:"stream_name"`
	Concurrency   int           `koanf:"concurrency"`
	JobTimeout    time.Duration `koanf:"job_timeout"`
}

type ASRConfig struct {
	Endpoint        string        `koanf:"endpoint"`
	DefaultEngine   string        `koanf:"default_engine"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
}

type EmbedderConfig struct {
	Endpoint  string `koanf:"endpoint"`
	ModelName string `koanf:"model_name"`
	Dimension int    `koanf:"dimension"`
	BatchSize int    `koanf:"batch_size"`
}

type VectorIndexConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Endpoint   string `koanf:"endpoint"`
	Collection string `koanf:"collection"`
}

type RetryConfig struct {
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	MaxAttempts int           `koanf:"max_attempts"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":                  8080,
		"server.read_timeout":          "15s",
		"server.write_timeout":         "15s",
		"database.max_conns":           10,
		"database.conn_max_lifetime":   "30m",
		"objectstore.poll_interval":    "5s",
		"queue.backend":                "nats",
		"queue.stream_name":            "mediasearch-jobs",
		"queue.concurrency":            4,
		"queue.job_timeout":            "10m",
		"asr.default_engine":           "default",
		"asr.request_timeout":          "5m",
		"embedder.batch_size":          32,
		"vectorindex.enabled":          false,
		"vectorindex.collection":       "segments",
		"retry.base_delay":             "1s",
		"retry.max_delay":              "300s",
		"retry.max_attempts":           5,
		"logging.level":                "info",
		"logging.format":               "json",
	}
}

// Load layers defaults, an optional YAML file, then environment variables
// (prefix MEDIASEARCH_, "__" as the nesting separator) into a Config.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := configPath(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("MEDIASEARCH_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "MEDIASEARCH_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func configPath() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range []string{"config.yaml", "config.yml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
