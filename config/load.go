package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Load reads configuration from the environment, with an optional .env file
// for local development. The EDGAR identity header is required up front so a
// misconfigured process fails before it ever touches SEC endpoints.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks invariants that cleanenv defaults cannot express.
func (c *Config) Validate() error {
	if c.SecEdgarUserAgent == "" {
		return fmt.Errorf("SEC_EDGAR_USER_AGENT is required; SEC EDGAR rejects requests without a declared identity")
	}
	if c.SecMaxRequestRate <= 0 {
		return fmt.Errorf("SEC_MAX_REQUEST_RATE must be positive, got %f", c.SecMaxRequestRate)
	}
	if c.ParseMaxAttempts < 1 {
		return fmt.Errorf("SEC_PARSE_MAX_ATTEMPTS must be at least 1, got %d", c.ParseMaxAttempts)
	}
	if c.ParseWorkerCount < 1 {
		return fmt.Errorf("PARSE_WORKER_COUNT must be at least 1, got %d", c.ParseWorkerCount)
	}
	return nil
}
