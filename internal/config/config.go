// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or ~/.websters/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: model selection, temperature, embedder
//   - Storage: PostgreSQL connection (see storage.go)
//   - Search: Serper credential and web-fetch limits
//   - Auth: JWT secret and token lifetime
//   - Observability: OTLP trace export
//
// Sensitive data (passwords, API keys, secrets) is masked in MarshalJSON.
// Validation lives in validation.go and uses sentinel errors so callers can
// branch with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTopK indicates the retrieval top_k default is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingJWTSecret indicates the JWT signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrInvalidJWTSecret indicates the JWT signing secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")

	// ErrInvalidFetchTimeout indicates the page-fetch timeout is out of range.
	ErrInvalidFetchTimeout = errors.New("invalid fetch timeout")
)

const (
	// DefaultModelName is the default Gemini generation model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation to 768 via OutputDimensionality; the pgvector schema uses
	// 768 dimensions (knowledge.VectorDimension).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultTopK is the retrieval depth used when a request omits top_k.
	DefaultTopK = 5

	// DefaultTokenTTLMinutes is the default JWT lifetime.
	DefaultTokenTTLMinutes = 30

	// MinJWTSecretLength is the minimum accepted JWT secret length in bytes.
	MinJWTSecretLength = 32
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// HTTP server
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// AI model configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`

	// Retrieval configuration
	TopK            int    `mapstructure:"top_k" json:"top_k"`
	PreferencesPath string `mapstructure:"preferences_path" json:"preferences_path"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Web search configuration
	SerperAPIKey     string `mapstructure:"serper_api_key" json:"serper_api_key"` // SENSITIVE: masked in MarshalJSON
	SearchMaxResults int    `mapstructure:"search_max_results" json:"search_max_results"`
	FetchTimeoutMS   int    `mapstructure:"fetch_timeout_ms" json:"fetch_timeout_ms"`

	// Auth configuration
	JWTSecret       string `mapstructure:"jwt_secret" json:"jwt_secret"` // SENSITIVE: masked in MarshalJSON
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes" json:"token_ttl_minutes"`

	// Observability configuration
	OTLP OTLPConfig `mapstructure:"otlp" json:"otlp"`
}

// OTLPConfig configures the OTLP trace exporter.
// Traces are exported over OTLP HTTP to a local collector or agent; the
// collector handles authentication and forwarding to the backend.
type OTLPConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".websters")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(configDir)

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{".", configDir})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("listen_addr", ":8000")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000", "http://localhost:3001"})

	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", 0.1)

	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("preferences_path", "config/source_preferences.yaml")

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "websters")
	viper.SetDefault("postgres_password", "websters_dev_password")
	viper.SetDefault("postgres_db_name", "websters")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("search_max_results", 5)
	viper.SetDefault("fetch_timeout_ms", 8000)

	viper.SetDefault("token_ttl_minutes", DefaultTokenTTLMinutes)

	viper.SetDefault("otlp.endpoint", "localhost:4318")
	viper.SetDefault("otlp.service_name", "websters-query-api")
	viper.SetDefault("otlp.environment", "dev")
	viper.SetDefault("otlp.enabled", false)
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence is
// checked in Validate().
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("listen_addr", "WEBSTERS_LISTEN_ADDR")
	mustBind("cors_origins", "WEBSTERS_CORS_ORIGINS")
	mustBind("model_name", "WEBSTERS_MODEL_NAME")
	mustBind("preferences_path", "WEBSTERS_PREFERENCES_PATH")
	mustBind("serper_api_key", "SERPER_API_KEY")
	mustBind("jwt_secret", "JWT_SECRET_KEY")
	mustBind("otlp.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked; longer secrets keep the
// first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// Masked fields: PostgresPassword, SerperAPIKey, JWTSecret.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(c.PostgresPassword)
	a.SerperAPIKey = maskSecret(c.SerperAPIKey)
	a.JWTSecret = maskSecret(c.JWTSecret)
	return json.Marshal(a)
}
