package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/joblink/joblink-web/config"
	httpx "github.com/joblink/joblink-web/internal/http"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// HTTPServerConfig contains what the HTTP server is built from.
type HTTPServerConfig struct {
	HTTP   config.HTTPConfig
	Auth   *AuthComponents
	DB     *sql.DB
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// BuildHTTPHandler assembles the router for the auth stack and its readiness checks.
func BuildHTTPHandler(cfg *HTTPServerConfig) (http.Handler, error) {
	if cfg == nil || cfg.Auth == nil || cfg.Auth.Controller == nil {
		return nil, errors.New("http: auth components are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	services := httpx.RouterServices{
		Auth:         cfg.Auth.Controller,
		Login:        cfg.Auth.Login,
		Sessions:     cfg.Auth.Sessions,
		Readiness:    readinessChecks(cfg.DB, cfg.Redis),
		BaseURL:      cfg.HTTP.BaseURL,
		CookieDomain: cfg.HTTP.CookieDomain,
		GuardWait:    cfg.HTTP.GuardWaitTimeout,
		Logger:       logger,
	}
	if cfg.Auth.Roles != nil {
		services.Roles = cfg.Auth.Roles
	}
	if cfg.Auth.RoleCache != nil {
		services.RoleCache = cfg.Auth.RoleCache
	}
	if cfg.HTTP.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", cfg.HTTP.CompressionLevel)
		services.CompressionLevel = cfg.HTTP.CompressionLevel
	}

	return httpx.NewRouter(services)
}

func readinessChecks(db *sql.DB, client redis.UniversalClient) []httpx.ReadinessCheck {
	var checks []httpx.ReadinessCheck
	if db != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "postgres", Check: db.PingContext})
	}
	if client != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
	return checks
}

func newServer(addr string, handler http.Handler) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Serve runs the HTTP server until ctx is cancelled, then drains it within shutdownTimeout.
func Serve(ctx context.Context, cfg config.HTTPConfig, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", orDefault(cfg.Addr, ":8080"))
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return serveListener(ctx, ln, newServer(cfg.Addr, handler), cfg.ShutdownTimeout, logger)
}

func serveListener(
	ctx context.Context,
	ln net.Listener,
	server *http.Server,
	shutdownTimeout time.Duration,
	logger *slog.Logger,
) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
