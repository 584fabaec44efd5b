package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joblink/joblink-web/config"
	"github.com/joho/godotenv"
)

// InitLogger initializes the structured logger. LOG_LEVEL accepts debug, info, warn or error.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateConfig rejects combinations the runtime cannot serve.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Auth.Mode == config.AuthModeMock && !cfg.IsDev {
		return errors.New("AUTH_MODE=mock is only allowed with DEV=true")
	}
	if cfg.Auth.Mode == config.AuthModeOAuth {
		oauth := cfg.Auth.OAuth
		var missing []string
		if oauth.ClientID == "" {
			missing = append(missing, "OAUTH_CLIENT_ID")
		}
		if oauth.ClientSecret == "" {
			missing = append(missing, "OAUTH_CLIENT_SECRET")
		}
		if oauth.DiscoveryURL == "" {
			missing = append(missing, "OAUTH_DISCOVERY_URL")
		}
		if len(missing) > 0 {
			return fmt.Errorf("oauth mode requires %s", strings.Join(missing, ", "))
		}
	}
	return nil
}

// StartupFields are the non-secret settings logged once at boot.
func StartupFields(cfg *config.AppConfig) []any {
	return []any{
		"dev", cfg.IsDev,
		"auth_mode", cfg.Auth.Mode,
		"session_backend", cfg.Auth.SessionBackend,
		"role_cache_ttl", cfg.Auth.Roles.CacheTTL,
		"db_host", cfg.Postgres.Host,
		"db_port", cfg.Postgres.Port,
		"db_name", cfg.Postgres.Name,
		"redis", cfg.NeedsRedis(),
		"http_addr", cfg.HTTP.Addr,
	}
}
