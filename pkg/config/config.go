// Package config provides configuration management for the segdag service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Dag       DagConfig       `mapstructure:"dag"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	APM       APMConfig       `mapstructure:"apm"`
	Debug     DebugConfig     `mapstructure:"debug"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// DagConfig holds dag-storage configuration.
type DagConfig struct {
	DataDir           string `mapstructure:"data_dir"`
	SegmentSize       int    `mapstructure:"segment_size"`
	CompressionType   string `mapstructure:"compression_type"` // zstd, gzip, or none
	CompressionLevel  int    `mapstructure:"compression_level"`
}

// CatalogConfig holds the dag-registry database connection configuration.
type CatalogConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql, or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ArchiveConfig holds snapshot-archive configuration.
type ArchiveConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
	LocalPath string `mapstructure:"local_path"`
}

// APMConfig holds APM callback configuration.
type APMConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// DebugConfig holds the read-only debug/query server configuration.
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// TelemetryConfig holds tracing configuration for pkg/telemetry. Every
// field here can still be overridden at process start by the matching
// standard OTEL_* environment variable, so a deployment that already
// sets those (e.g. injected by a collector sidecar) keeps working
// without a config file.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Endpoint       string `mapstructure:"endpoint"`
	Protocol       string `mapstructure:"protocol"` // grpc or http/protobuf
	Insecure       bool   `mapstructure:"insecure"`
	Sampler        string `mapstructure:"sampler"`
	SamplerArg     string `mapstructure:"sampler_arg"`
	Headers        string `mapstructure:"headers"`        // "key1=value1,key2=value2"
	ResourceAttrs  string `mapstructure:"resource_attrs"` // "key1=value1,key2=value2"
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/segdag")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw config bytes of the given
// type, e.g. "yaml" (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("dag.data_dir", "./data")
	v.SetDefault("dag.segment_size", 64)
	v.SetDefault("dag.compression_type", "zstd")
	v.SetDefault("dag.compression_level", 3)

	v.SetDefault("catalog.type", "sqlite")
	v.SetDefault("catalog.host", "localhost")
	v.SetDefault("catalog.port", 5432)
	v.SetDefault("catalog.max_conns", 10)

	v.SetDefault("archive.type", "local")
	v.SetDefault("archive.local_path", "./archive")

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.addr", ":8088")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "segdag")
	v.SetDefault("telemetry.service_version", "unknown")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.sampler", "always_on")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Dag.SegmentSize < 2 {
		return fmt.Errorf("dag segment_size must be at least 2")
	}
	switch c.Catalog.Type {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported catalog type: %s", c.Catalog.Type)
	}
	switch c.Archive.Type {
	case "local", "cos":
	default:
		return fmt.Errorf("unsupported archive type: %s", c.Archive.Type)
	}
	return nil
}

// EnsureDataDir creates the dag data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Dag.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Dag.DataDir, 0755)
}

// GetDagDir returns the storage directory for a single named dag.
func (c *Config) GetDagDir(name string) string {
	return filepath.Join(c.Dag.DataDir, name)
}
