package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joblink/joblink-web/config"
	"github.com/joblink/joblink-web/internal/adapters/authroles"
	"github.com/joblink/joblink-web/internal/adapters/devauth"
	"github.com/joblink/joblink-web/internal/adapters/oidc"
	redisadapter "github.com/joblink/joblink-web/internal/adapters/redis"
	"github.com/joblink/joblink-web/internal/data"
	"github.com/joblink/joblink-web/internal/observability/notify"
	"github.com/joblink/joblink-web/internal/observability/notify/pagerduty"
	"github.com/joblink/joblink-web/internal/observability/notify/slack"
	"github.com/joblink/joblink-web/internal/observability/statsd"
	"github.com/joblink/joblink-web/internal/ports"
	"github.com/joblink/joblink-web/internal/service"
	"github.com/redis/go-redis/v9"
)

// AuthDeps are the shared resources the auth stack is built from.
// DB and Redis may be nil; the matching components are then left out.
type AuthDeps struct {
	Config  *config.AppConfig
	DB      *sql.DB
	Redis   redis.UniversalClient
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// AuthComponents is everything the HTTP layer needs from the auth stack.
type AuthComponents struct {
	Controller *service.AuthController
	Login      ports.LoginProvider
	Sessions   ports.SessionIssuer
	// Roles is the writable role table; nil without a database.
	Roles *data.RoleRepo
	// RoleCache is nil unless AUTH_ROLE_CACHE_TTL > 0 and Redis is available.
	RoleCache *redisadapter.RoleCache
}

// BuildAuth wires the identity provider, login flow and role stores into an AuthController.
// The controller is returned unstarted.
func BuildAuth(ctx context.Context, deps AuthDeps) (*AuthComponents, error) {
	if deps.Config == nil {
		return nil, errors.New("auth: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config.Auth

	provider, sessions, err := buildSessionProvider(cfg, deps.Redis, logger)
	if err != nil {
		return nil, err
	}
	login, err := buildLoginProvider(ctx, cfg, provider)
	if err != nil {
		return nil, err
	}

	out := &AuthComponents{Login: login, Sessions: sessions}
	if deps.DB != nil {
		out.Roles = data.NewRoleRepo(deps.DB)
	}
	roles := buildRoleStore(cfg, out, deps.Redis, logger)

	alerts := BuildAlerts(deps.Config.Observability.Notifications, deps.Config.HTTP.BaseURL, logger)

	metrics := deps.Metrics
	if metrics == nil {
		metrics = statsd.Discard
	}

	out.Controller = service.NewAuthController(service.AuthControllerOptions{
		Provider:            provider,
		Roles:               roles,
		Logger:              logger.With("component", "auth_controller"),
		Metrics:             statsd.WithTags(metrics, map[string]string{"auth_mode": string(cfg.Mode)}),
		Alerts:              alerts,
		LookupTimeout:       cfg.Roles.LookupTimeout,
		ResubscribeInterval: cfg.ResubscribeInterval,
		AlertInterval:       deps.Config.Observability.Notifications.Interval,
	})

	logger.InfoContext(ctx, "auth configured",
		"mode", cfg.Mode,
		"session_backend", cfg.SessionBackend,
		"static_roles", !staticRoles(cfg.Roles).Empty(),
		"role_table", out.Roles != nil,
		"role_cache", out.RoleCache != nil,
		"alerts", alerts != nil,
	)
	return out, nil
}

// buildSessionProvider returns the session source and the issuer the login callback writes to.
// The memory backend reuses the dev provider as a single-process session holder.
//
//nolint:ireturn // callers only depend on the ports.
func buildSessionProvider(
	cfg config.AuthConfig,
	client redis.UniversalClient,
	logger *slog.Logger,
) (ports.IdentityProvider, ports.SessionIssuer, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		if client == nil {
			return nil, nil, errors.New("auth: redis session backend selected but redis is not connected")
		}
		p := redisadapter.NewSessionProvider(client, redisadapter.SessionProviderOptions{
			Prefix: cfg.SessionPrefix,
			Logger: logger,
		})
		return p, p, nil
	default:
		p, err := newDevProvider(cfg.DevAuth)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	}
}

//nolint:ireturn // callers only depend on the port.
func buildLoginProvider(ctx context.Context, cfg config.AuthConfig, sessions ports.IdentityProvider) (ports.LoginProvider, error) {
	if cfg.Mode == config.AuthModeMock {
		if lp, ok := sessions.(ports.LoginProvider); ok {
			return lp, nil
		}
		p, err := newDevProvider(cfg.DevAuth)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	oauth := cfg.OAuth
	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scope:        oauth.Scope,
		DiscoveryURL: oauth.DiscoveryURL,
		Claims: oidc.ClaimPaths{
			UserID:    oauth.UserIDClaim,
			Email:     oauth.EmailClaim,
			FirstName: oauth.FirstNameClaim,
			LastName:  oauth.LastNameClaim,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("auth: create oidc provider: %w", err)
	}
	return prov, nil
}

func newDevProvider(cfg config.DevAuthConfig) (*devauth.Provider, error) {
	p, err := devauth.NewProvider(devauth.Config{
		UserID:          cfg.UserID,
		Email:           cfg.Email,
		FirstName:       cfg.FirstName,
		LastName:        cfg.LastName,
		SessionDuration: cfg.SessionDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: create dev provider: %w", err)
	}
	return p, nil
}

func staticRoles(cfg config.RoleConfig) authroles.StaticRoleStore {
	return authroles.StaticRoleStore{
		AdminUsers:     cfg.AdminUsers,
		CompanyUsers:   cfg.CompanyUsers,
		JobseekerUsers: cfg.JobseekerUsers,
	}
}

// buildRoleStore chains configured assignments ahead of the role table.
// Lookups against the table are shared per user and optionally cached in Redis.
func buildRoleStore(
	cfg config.AuthConfig,
	out *AuthComponents,
	client redis.UniversalClient,
	logger *slog.Logger,
) authroles.Chain {
	var chain authroles.Chain
	if static := staticRoles(cfg.Roles); !static.Empty() {
		chain = append(chain, static)
	}
	if out.Roles == nil {
		return chain
	}

	var table ports.RoleStore = authroles.NewSharedRoleStore(out.Roles, cfg.Roles.LookupTimeout)
	if cfg.Roles.CacheTTL > 0 {
		if client == nil {
			logger.Warn("role cache disabled: redis not connected", "ttl", cfg.Roles.CacheTTL)
		} else {
			out.RoleCache = redisadapter.NewRoleCache(client, table, redisadapter.RoleCacheOptions{
				Prefix: cfg.SessionPrefix,
				TTL:    cfg.Roles.CacheTTL,
				Logger: logger,
			})
			table = out.RoleCache
		}
	}
	return append(chain, table)
}

// BuildAlerts returns a fan-out of the enabled alert sinks, or nil when none are enabled.
// Sinks that fail to initialise are logged and skipped.
//
//nolint:ireturn // nil signals "no alerting" to the controller.
func BuildAlerts(cfg config.ObservabilityNotificationsConfig, baseURL string, logger *slog.Logger) notify.Sink {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	var sinks notify.Fanout
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			StatusURL:  strings.TrimRight(baseURL, "/") + "/readyz",
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}
	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}
	if len(sinks) == 0 {
		logger.Warn("notifications enabled but no sinks configured")
		return nil
	}
	return sinks
}

// BuildMetrics dials StatsD when metrics are enabled. The returned client is always usable.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*statsd.Client, error) {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return client, nil
}
