// Package config loads process settings from the environment and
// bootstraps logging.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Settings holds the process-level configuration. Runtime-tunable
// parameters (watchlist, weights, thresholds) live in Redis instead; see
// signal.RuntimeConfig.
type Settings struct {
	// Shared secrets.
	TVWebhookSecret string
	AdminToken      string

	// Redis.
	RedisURL string

	// AI provider: "dummy" or "openai".
	AIProvider string
	AIAPIKey   string
	AIModel    string
	AIBaseURL  string

	// App.
	LogLevel string
	LogJSON  bool
	AppEnv   string

	// HTTP.
	HTTPHost string
	HTTPPort int

	// Ingress rate limit.
	RateLimitWindowSec int
	RateLimitMaxEvents int
}

// Load reads settings from the environment, applying defaults. The two
// shared secrets are required; everything else has a sane default.
func Load() (*Settings, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("AI_PROVIDER", "dummy")
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", true)
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8000)
	v.SetDefault("RATE_LIMIT_WINDOW_SEC", 10)
	v.SetDefault("RATE_LIMIT_MAX_EVENTS", 30)

	s := &Settings{
		TVWebhookSecret:    v.GetString("TV_WEBHOOK_SECRET"),
		AdminToken:         v.GetString("ADMIN_TOKEN"),
		RedisURL:           v.GetString("REDIS_URL"),
		AIProvider:         v.GetString("AI_PROVIDER"),
		AIAPIKey:           v.GetString("AI_API_KEY"),
		AIModel:            v.GetString("AI_MODEL"),
		AIBaseURL:          v.GetString("AI_BASE_URL"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogJSON:            v.GetBool("LOG_JSON"),
		AppEnv:             v.GetString("APP_ENV"),
		HTTPHost:           v.GetString("HTTP_HOST"),
		HTTPPort:           v.GetInt("HTTP_PORT"),
		RateLimitWindowSec: v.GetInt("RATE_LIMIT_WINDOW_SEC"),
		RateLimitMaxEvents: v.GetInt("RATE_LIMIT_MAX_EVENTS"),
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.TVWebhookSecret == "" {
		return fmt.Errorf("TV_WEBHOOK_SECRET is required")
	}
	if s.AdminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN is required")
	}
	if s.RateLimitWindowSec <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_SEC must be > 0, got %d", s.RateLimitWindowSec)
	}
	if s.RateLimitMaxEvents <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_EVENTS must be > 0, got %d", s.RateLimitMaxEvents)
	}
	return nil
}
