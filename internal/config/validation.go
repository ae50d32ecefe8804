package config

import (
	"fmt"
	"os"
	"slices"
)

// validSSLModes are the PostgreSQL sslmode values accepted by pgx.
var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API key (required for all AI operations; read directly by Genkit)
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Retrieval configuration
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: must be one of %v, got %q", ErrInvalidPostgresSSLMode, validSSLModes, c.PostgresSSLMode)
	}

	// Web fetch timeouts outside 500ms..10s are either useless or
	// stall the combined endpoint.
	if c.FetchTimeoutMS < 500 || c.FetchTimeoutMS > 10000 {
		return fmt.Errorf("%w: must be between 500 and 10000 ms, got %d", ErrInvalidFetchTimeout, c.FetchTimeoutMS)
	}

	// Auth configuration. The secret is required: chat endpoints cannot
	// verify ownership without identities.
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: set JWT_SECRET_KEY", ErrMissingJWTSecret)
	}
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("%w: must be at least %d bytes, got %d",
			ErrInvalidJWTSecret, MinJWTSecretLength, len(c.JWTSecret))
	}

	// NOTE: SerperAPIKey is intentionally not validated; its absence is a
	// supported degraded mode (web search returns empty results).
	return nil
}
