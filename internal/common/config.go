package common

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	Provider ProviderConfig
	Extract  ExtractConfig
	Export   ExportConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"docstream"`
	User     string `envconfig:"DB_USER" default:"docstream"`
	Password string `envconfig:"DB_PASS" default:""`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// StorageConfig holds object-store (artifact bucket) configuration.
type StorageConfig struct {
	Endpoint      string        `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey     string        `envconfig:"STORAGE_ACCESS_KEY" default:""`
	SecretKey     string        `envconfig:"STORAGE_SECRET_KEY" default:""`
	Bucket        string        `envconfig:"STORAGE_BUCKET" default:"docstream"`
	UseSSL        bool          `envconfig:"STORAGE_USE_SSL" default:"false"`
	PresignExpiry time.Duration `envconfig:"STORAGE_PRESIGN_EXPIRY" default:"168h"`
}

// ProviderConfig selects and configures the AI backend. Provider choice is a
// static configuration concern; there is no runtime fallback chain.
type ProviderConfig struct {
	Name        string        `envconfig:"AI_PROVIDER" default:"openai"`
	APIKey      string        `envconfig:"AI_API_KEY" default:""`
	BaseURL     string        `envconfig:"AI_BASE_URL" default:""`
	Model       string        `envconfig:"AI_MODEL" default:""`
	Temperature float32       `envconfig:"AI_TEMPERATURE" default:"0.0"`
	Timeout     time.Duration `envconfig:"AI_TIMEOUT" default:"45s"`
	MaxTextLen  int           `envconfig:"AI_MAX_TEXT_LEN" default:"12000"`
}

// ExtractConfig holds text-extraction configuration.
type ExtractConfig struct {
	PdftotextBin string `envconfig:"PDFTOTEXT_BIN" default:"pdftotext"`
	MaxPages     int    `envconfig:"EXTRACT_MAX_PAGES" default:"50"`
}

// ExportConfig holds export-job behavior knobs.
type ExportConfig struct {
	ExpiryHorizon time.Duration `envconfig:"EXPORT_EXPIRY_HORIZON" default:"168h"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the keys that have no sane default.
func (c *Config) Validate() error {
	if c.Database.Type == "pgsql" && c.Database.Password == "" {
		return ValidationError("DB_PASS is required for pgsql")
	}
	if c.Provider.APIKey == "" {
		return ValidationError("AI_API_KEY is required")
	}
	return nil
}
