package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/healthos/healthos/internal/platform/predictor"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	PredictorMode    string        `mapstructure:"PREDICTOR_MODE"`
	PredictorCommand string        `mapstructure:"PREDICTOR_COMMAND"`
	PredictorWorkdir string        `mapstructure:"PREDICTOR_WORKDIR"`
	PredictorURL     string        `mapstructure:"PREDICTOR_URL"`
	PredictorToken   string        `mapstructure:"PREDICTOR_TOKEN"`
	PredictorTimeout time.Duration `mapstructure:"PREDICTOR_TIMEOUT"`

	GenAIAPIKey   string `mapstructure:"GENAI_API_KEY"`
	GenAIModel    string `mapstructure:"GENAI_MODEL"`
	GenAIBackend  string `mapstructure:"GENAI_BACKEND"`
	GenAIProject  string `mapstructure:"GENAI_PROJECT"`
	GenAILocation string `mapstructure:"GENAI_LOCATION"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_SIGNING_KEY", "AUTH_JWKS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"PREDICTOR_MODE", "PREDICTOR_COMMAND", "PREDICTOR_WORKDIR", "PREDICTOR_URL",
	"PREDICTOR_TOKEN", "PREDICTOR_TIMEOUT",
	"GENAI_API_KEY", "GENAI_MODEL", "GENAI_BACKEND", "GENAI_PROJECT", "GENAI_LOCATION",
}

// Load reads .env from the working directory when present and overlays the
// process environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("PREDICTOR_MODE", predictor.ModeNone)
	v.SetDefault("PREDICTOR_TIMEOUT", "5s")
	v.SetDefault("GENAI_MODEL", "gemini-2.0-flash")
	v.SetDefault("GENAI_BACKEND", "gemini")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	cfg.PredictorMode = strings.ToLower(cfg.PredictorMode)

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level parses LOG_LEVEL, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Predictor returns the predictor settings in the form predictor.New takes.
func (c *Config) Predictor() predictor.Config {
	return predictor.Config{
		Mode:    c.PredictorMode,
		Command: c.PredictorCommand,
		Workdir: c.PredictorWorkdir,
		URL:     c.PredictorURL,
		Token:   c.PredictorToken,
		GenAI: predictor.GeminiConfig{
			APIKey:   c.GenAIAPIKey,
			Model:    c.GenAIModel,
			Backend:  c.GenAIBackend,
			Project:  c.GenAIProject,
			Location: c.GenAILocation,
		},
	}
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier must be configured, and every predictor mode needs the
// settings it connects with.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes")
	}

	switch c.PredictorMode {
	case predictor.ModeNone, "":
	case predictor.ModeExec:
		if strings.TrimSpace(c.PredictorCommand) == "" {
			return fmt.Errorf("PREDICTOR_COMMAND is required when PREDICTOR_MODE=exec")
		}
	case predictor.ModeHTTP:
		if c.PredictorURL == "" {
			return fmt.Errorf("PREDICTOR_URL is required when PREDICTOR_MODE=http")
		}
	case predictor.ModeGemini:
		if c.GenAIBackend == "vertex" {
			if c.GenAIProject == "" || c.GenAILocation == "" {
				return fmt.Errorf("GENAI_PROJECT and GENAI_LOCATION are required for the vertex backend")
			}
		} else if c.GenAIAPIKey == "" {
			return fmt.Errorf("GENAI_API_KEY is required when PREDICTOR_MODE=gemini")
		}
	default:
		return fmt.Errorf("PREDICTOR_MODE must be none, exec, http or gemini, got %q", c.PredictorMode)
	}

	if c.PredictorTimeout < 0 {
		return fmt.Errorf("PREDICTOR_TIMEOUT must not be negative")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS must be > 0 and RATE_LIMIT_BURST >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
