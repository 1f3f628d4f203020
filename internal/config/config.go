package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PublicURL is the externally reachable base URL used to build OAuth redirect URIs.
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"`
}

// SecurityConfig holds the key used to seal OAuth tokens at rest
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// OAuthConfig holds per-provider OAuth client registration
type OAuthConfig struct {
	SuccessRedirect string             `mapstructure:"success_redirect"`
	ErrorRedirect   string             `mapstructure:"error_redirect"`
	Gmail           OAuthClientConfig  `mapstructure:"gmail"`
	Outlook         OutlookOAuthConfig `mapstructure:"outlook"`
}

// OAuthClientConfig is a registered OAuth client
type OAuthClientConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// OutlookOAuthConfig is the Microsoft identity platform registration
type OutlookOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Tenant       string `mapstructure:"tenant"`
}

// Enabled reports whether the client has credentials
func (c OAuthClientConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Enabled reports whether the client has credentials
func (c OutlookOAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// IngestConfig tunes the email-to-transaction pipeline
type IngestConfig struct {
	DaysBack               int    `mapstructure:"days_back"`
	Timezone               string `mapstructure:"timezone"`
	RequireInstrumentMatch bool   `mapstructure:"require_instrument_match"`
	MaxImagesPerEmail      int    `mapstructure:"max_images_per_email"`
}

// Location resolves the configured timezone, falling back to UTC
func (c IngestConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OCRConfig configures the image text recognizer
type OCRConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	TesseractPath string `mapstructure:"tesseract_path"`
	Language      string `mapstructure:"language"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.public_url", "http://localhost:8080")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.path", "./data/ingest.db")

	v.SetDefault("oauth.success_redirect", "http://localhost:3000/settings/integrations")
	v.SetDefault("oauth.error_redirect", "http://localhost:3000/settings/integrations/error")
	v.SetDefault("oauth.outlook.tenant", "common")

	v.SetDefault("ingest.days_back", 7)
	v.SetDefault("ingest.timezone", "Asia/Kolkata")
	v.SetDefault("ingest.require_instrument_match", false)
	v.SetDefault("ingest.max_images_per_email", 3)

	v.SetDefault("ocr.enabled", false)
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.language", "eng")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_minutes", 30)

	v.SetDefault("log.level", "info")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.public_url", "SERVER_PUBLIC_URL")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.path", "DB_PATH")

	// Security
	v.BindEnv("security.encryption_key", "TOKEN_ENCRYPTION_KEY")

	// OAuth
	v.BindEnv("oauth.success_redirect", "OAUTH_SUCCESS_REDIRECT")
	v.BindEnv("oauth.error_redirect", "OAUTH_ERROR_REDIRECT")
	v.BindEnv("oauth.gmail.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("oauth.gmail.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("oauth.outlook.client_id", "OUTLOOK_CLIENT_ID")
	v.BindEnv("oauth.outlook.client_secret", "OUTLOOK_CLIENT_SECRET")
	v.BindEnv("oauth.outlook.tenant", "OUTLOOK_TENANT")

	// Ingest
	v.BindEnv("ingest.days_back", "INGEST_DAYS_BACK")
	v.BindEnv("ingest.timezone", "INGEST_TIMEZONE")
	v.BindEnv("ingest.require_instrument_match", "INGEST_REQUIRE_INSTRUMENT_MATCH")
	v.BindEnv("ingest.max_images_per_email", "INGEST_MAX_IMAGES_PER_EMAIL")

	// OCR
	v.BindEnv("ocr.enabled", "OCR_ENABLED")
	v.BindEnv("ocr.tesseract_path", "OCR_TESSERACT_PATH")
	v.BindEnv("ocr.language", "OCR_LANGUAGE")

	// Scheduler
	v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	v.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")

	v.BindEnv("log.level", "LOG_LEVEL")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(c.Security.EncryptionKey))
	}

	if !c.OAuth.Gmail.Enabled() && !c.OAuth.Outlook.Enabled() {
		return fmt.Errorf("at least one of Gmail or Outlook OAuth credentials is required")
	}

	if c.Ingest.DaysBack <= 0 {
		return fmt.Errorf("ingest days_back must be greater than 0")
	}

	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		return fmt.Errorf("invalid ingest timezone %q: %w", c.Ingest.Timezone, err)
	}

	if c.Scheduler.Enabled && c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	return nil
}

// RedirectURL returns the OAuth callback URL registered for a provider
func (c *Config) RedirectURL(provider string) string {
	return strings.TrimRight(c.Server.PublicURL, "/") + "/api/v1/oauth/" + provider + "/callback"
}
