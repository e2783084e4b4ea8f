package datamodel

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageBackendFile     = "file"
	StorageBackendS3       = "s3"
	StorageBackendPostgres = "postgres"
)

// Config consolidates storage, conversion and logging settings
type Config struct {
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// StorageConfig selects and configures the schema store
type StorageConfig struct {
	Backend  string         `json:"backend" yaml:"backend"`
	File     FileConfig     `json:"file" yaml:"file"`
	S3       S3Config       `json:"s3" yaml:"s3"`
	Database DatabaseConfig `json:"database" yaml:"database"`
}

// FileConfig contains settings for the directory-backed store
type FileConfig struct {
	RootDir string `json:"rootDir" yaml:"rootDir"`
}

// S3Config contains settings for the S3-backed store
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	AccessKey    string `json:"accessKey" yaml:"accessKey"`
	SecretKey    string `json:"secretKey" yaml:"secretKey"`
	UsePathStyle bool   `json:"usePathStyle" yaml:"usePathStyle"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	Database       string        `json:"database" yaml:"database"`
	Username       string        `json:"username" yaml:"username"`
	Password       string        `json:"password" yaml:"password"`
	SSLMode        string        `json:"sslMode" yaml:"sslMode"`
	MaxConnections int           `json:"maxConnections" yaml:"maxConnections"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	SchemaTable    string        `json:"schemaTable" yaml:"schemaTable"`
	Namespace      string        `json:"namespace" yaml:"namespace"`
	UseIAM         bool          `json:"useIAM" yaml:"useIAM"`
	Region         string        `json:"region" yaml:"region"`
}

// ConversionConfig contains settings for generated artifacts
type ConversionConfig struct {
	SchemaDialect      string `json:"schemaDialect" yaml:"schemaDialect"`
	ModelsDirectory    string `json:"modelsDirectory" yaml:"modelsDirectory"`
	ElementFormDefault string `json:"elementFormDefault" yaml:"elementFormDefault"`
	IndentXsd          int    `json:"indentXsd" yaml:"indentXsd"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Format      string `json:"format" yaml:"format"`
	Development bool   `json:"development" yaml:"development"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: StorageBackendFile,
			File: FileConfig{
				RootDir: ".",
			},
			S3: S3Config{
				Region: "eu-north-1",
			},
			Database: DatabaseConfig{
				Host:           "localhost",
				Port:           5432,
				Database:       "datamodel",
				Username:       "postgres",
				SSLMode:        "disable",
				MaxConnections: 10,
				Timeout:        30 * time.Second,
				SchemaTable:    "schema_files",
				Namespace:      "default",
			},
		},
		Conversion: ConversionConfig{
			SchemaDialect:      "https://json-schema.org/draft/2020-12/schema",
			ModelsDirectory:    "App/models",
			ElementFormDefault: "qualified",
			IndentXsd:          2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads a YAML (or JSON) file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageBackendFile:
		if c.Storage.File.RootDir == "" {
			return &ConfigError{Field: "storage.file.rootDir", Message: "is required for the file backend"}
		}
	case StorageBackendS3:
		if c.Storage.S3.Bucket == "" {
			return &ConfigError{Field: "storage.s3.bucket", Message: "is required for the s3 backend"}
		}
		if (c.Storage.S3.AccessKey == "") != (c.Storage.S3.SecretKey == "") {
			return &ConfigError{Field: "storage.s3.accessKey", Message: "accessKey and secretKey must be set together"}
		}
	case StorageBackendPostgres:
		db := c.Storage.Database
		if db.Host == "" {
			return &ConfigError{Field: "storage.database.host", Message: "is required for the postgres backend"}
		}
		if db.Port <= 0 || db.Port > 65535 {
			return &ConfigError{Field: "storage.database.port", Message: "must be a valid TCP port"}
		}
		if db.MaxConnections <= 0 {
			return &ConfigError{Field: "storage.database.maxConnections", Message: "must be greater than 0"}
		}
		if db.SchemaTable == "" {
			return &ConfigError{Field: "storage.database.schemaTable", Message: "is required for the postgres backend"}
		}
		if db.UseIAM && db.Region == "" {
			return &ConfigError{Field: "storage.database.region", Message: "is required when useIAM is set"}
		}
	default:
		return &ConfigError{Field: "storage.backend", Message: fmt.Sprintf("unknown backend %q", c.Storage.Backend)}
	}

	if c.Conversion.ElementFormDefault != "qualified" && c.Conversion.ElementFormDefault != "unqualified" {
		return &ConfigError{Field: "conversion.elementFormDefault", Message: "must be qualified or unqualified"}
	}
	if c.Conversion.IndentXsd < 0 {
		return &ConfigError{Field: "conversion.indentXsd", Message: "must not be negative"}
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be json or console"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
