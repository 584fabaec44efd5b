package httpx

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
)

// RouterServices holds everything the HTTP router wires together.
type RouterServices struct {
	Auth     AuthSource
	Login    ports.LoginProvider
	Sessions ports.SessionIssuer
	// Roles mounts the admin role API when set.
	Roles     RoleAdmin
	RoleCache RoleInvalidator
	Readiness []ReadinessCheck
	Pages     *PageRenderer // parsed from the embedded templates when nil

	BaseURL      string
	CookieDomain string
	GuardWait    time.Duration
	// CompressionLevel enables gzip/deflate responses when > 0.
	CompressionLevel int
	Logger           *slog.Logger
}

// compressTypes are the content types worth compressing.
var compressTypes = []string{"text/html", "text/css", "application/json", "application/javascript", "text/plain"}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pages := services.Pages
	if pages == nil {
		var err error
		if pages, err = NewPageRenderer(logger); err != nil {
			return nil, fmt.Errorf("parse page templates: %w", err)
		}
	}

	guard := &Guard{Auth: services.Auth, Wait: services.GuardWait, Logger: logger}
	authHandlers := &AuthHandlers{
		Auth:         services.Auth,
		Login:        services.Login,
		Sessions:     services.Sessions,
		Pages:        pages,
		CallbackURL:  strings.TrimSuffix(services.BaseURL, "/") + "/auth/callback",
		CookieDomain: services.CookieDomain,
		StatusWait:   services.GuardWait,
		Logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Recover(logger))
	r.Use(Logging(logger))
	if services.CompressionLevel > 0 {
		r.Use(middleware.Compress(services.CompressionLevel, compressTypes...))
	}

	r.Get("/healthz", healthHandler)
	r.Head("/healthz", healthHandler)
	r.Method(http.MethodGet, "/readyz", &ReadyHandler{Checks: services.Readiness, Logger: logger})

	r.Group(func(r chi.Router) {
		r.Use(CSRFProtection(services.CookieDomain))
		registerAuthRoutes(r, authHandlers, guard)
		registerDashboardRoutes(r, authHandlers, guard)
		if services.Roles != nil {
			registerRoleRoutes(r, &RoleHandlers{Repo: services.Roles, Cache: services.RoleCache, Logger: logger}, guard)
		}
	})

	return r, nil
}

func registerAuthRoutes(r chi.Router, h *AuthHandlers, guard *Guard) {
	r.With(guard.RedirectIfAuthenticated()).Get("/", h.SignInPage)
	r.Route(domainauth.SignInPath, func(r chi.Router) {
		r.With(guard.RedirectIfAuthenticated()).Get("/", h.SignInPage)
		r.Get("/status", h.Status)
		r.Get("/login", h.StartLogin)
		r.Get("/callback", h.Callback)
		r.Post("/logout", h.Logout)
	})
}

func registerDashboardRoutes(r chi.Router, h *AuthHandlers, guard *Guard) {
	for _, role := range []domainauth.Role{domainauth.RoleJobseeker, domainauth.RoleCompany, domainauth.RoleAdmin} {
		r.With(guard.RequireAuth(role)).Get(domainauth.DashboardPath(role), h.Dashboard)
	}
}

func registerRoleRoutes(r chi.Router, h *RoleHandlers, guard *Guard) {
	r.Route("/api/roles", func(r chi.Router) {
		r.Use(guard.RequireAuth(domainauth.RoleAdmin))
		r.Get("/", h.List)
		r.Put("/{userID}", h.Assign)
		r.Delete("/{userID}", h.Revoke)
	})
}
