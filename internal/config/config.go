package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "gateway", "password",
}

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required"`
	RedisURL      string `env:"REDIS_URL,required"`
	GatewaySecret string `env:"GATEWAY_SECRET"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	Environment   string `env:"APP_ENV" envDefault:"development"`
	OTelEndpoint  string `env:"OTEL_ENDPOINT"`

	ScoringAPIKey                string  `env:"SCORING_API_KEY"`
	ScoringBaseURL               string  `env:"SCORING_BASE_URL"`
	ScoringModel                 string  `env:"SCORING_MODEL" envDefault:"gpt-4o-mini"`
	ScoringRequestTimeoutSeconds int     `env:"SCORING_REQUEST_TIMEOUT_SECONDS" envDefault:"8"`
	ScoringMaxRetries            int     `env:"SCORING_MAX_RETRIES" envDefault:"2"`
	ScoringBackoffBaseMillis     int     `env:"SCORING_BACKOFF_BASE_MS" envDefault:"200"`
	ScoringRatePerSecond         float64 `env:"SCORING_RATE_PER_SECOND" envDefault:"5"`
	ScoringFallbackEnabled       bool    `env:"SCORING_FALLBACK_ENABLED" envDefault:"true"`

	CandidatePoolSize          int  `env:"CANDIDATE_POOL_SIZE" envDefault:"50"`
	DefaultTopK                int  `env:"DEFAULT_TOP_K" envDefault:"10"`
	VideoRetryWindowSeconds    int  `env:"VIDEO_RETRY_WINDOW_SECONDS" envDefault:"30"`
	MissedSessionGraceMinutes  int  `env:"MISSED_SESSION_GRACE_MINUTES" envDefault:"0"`
	MissedSweepEnabled         bool `env:"MISSED_SWEEP_ENABLED" envDefault:"false"`
	MissedSweepIntervalSeconds int  `env:"MISSED_SWEEP_INTERVAL_SECONDS" envDefault:"300"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) ScoringRequestTimeout() time.Duration {
	return time.Duration(c.ScoringRequestTimeoutSeconds) * time.Second
}

func (c *Config) ScoringBackoffBase() time.Duration {
	return time.Duration(c.ScoringBackoffBaseMillis) * time.Millisecond
}

func (c *Config) VideoRetryWindow() time.Duration {
	return time.Duration(c.VideoRetryWindowSeconds) * time.Second
}

func (c *Config) MissedSessionGrace() time.Duration {
	return time.Duration(c.MissedSessionGraceMinutes) * time.Minute
}

func (c *Config) MissedSweepInterval() time.Duration {
	return time.Duration(c.MissedSweepIntervalSeconds) * time.Second
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ScoringEnabled reports whether an external scoring provider is configured.
// Without one every ranking uses the deterministic interest-overlap scorer.
func (c *Config) ScoringEnabled() bool {
	return c.ScoringAPIKey != ""
}

func (c *Config) Validate(isProduction bool) error {
	if c.CandidatePoolSize <= 0 {
		return fmt.Errorf("CANDIDATE_POOL_SIZE must be positive")
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("DEFAULT_TOP_K must be positive")
	}
	if c.ScoringMaxRetries < 0 {
		return fmt.Errorf("SCORING_MAX_RETRIES must not be negative")
	}
	if c.ScoringRequestTimeoutSeconds <= 0 {
		return fmt.Errorf("SCORING_REQUEST_TIMEOUT_SECONDS must be positive")
	}

	if isProduction {
		if err := validateSecret("GATEWAY_SECRET", c.GatewaySecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if !c.ScoringEnabled() {
			log.Warn().Msg("SCORING_API_KEY is empty in production: matches will use the interest-overlap scorer only")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
