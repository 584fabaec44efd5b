package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
)

const defaultGuardWait = 5 * time.Second

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("request_id", middleware.GetReqID(r.Context())),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AuthSource is the view of the auth controller the HTTP layer reads from.
type AuthSource interface {
	Snapshot() domainauth.State
	WaitLoaded(ctx context.Context) (domainauth.State, error)
	Watch(fn func(domainauth.State)) (stop func())
	SignOut(ctx context.Context) error
}

// Guard turns the auth route guards into HTTP middleware. A request is judged against the
// controller state bound to its session cookie, so clients that do not hold the current
// session are visitors. It is held until the guard can decide, bounded by Wait, and is then
// either served or navigated away.
type Guard struct {
	Auth   AuthSource
	Wait   time.Duration
	Logger *slog.Logger
}

func (g *Guard) logger() *slog.Logger {
	if g != nil && g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Guard) wait() time.Duration {
	if g.Wait > 0 {
		return g.Wait
	}
	return defaultGuardWait
}

// RequireAuth admits signed-in users holding requiredRole. An empty role admits any signed-in user.
// Visitors are sent to the sign-in page and users with another role to their own dashboard.
func (g *Guard) RequireAuth(requiredRole domainauth.Role) func(http.Handler) http.Handler {
	return g.middleware("require_auth", func(s domainauth.State) domainauth.Decision {
		return domainauth.RequireAuth(s, requiredRole)
	})
}

// RedirectIfAuthenticated keeps public pages for visitors; signed-in users with a role go to their dashboard.
func (g *Guard) RedirectIfAuthenticated() func(http.Handler) http.Handler {
	return g.middleware("redirect_if_authenticated", domainauth.RedirectIfAuthenticated)
}

func (g *Guard) middleware(name string, judge func(domainauth.State) domainauth.Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, st, err := g.decide(r.Context(), requestSessionID(r), judge)
			if err != nil {
				g.logger().WarnContext(r.Context(), "auth guard undecided",
					slog.String("guard", name),
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				w.Header().Set("Retry-After", "1")
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "auth_pending",
					Err:     errors.New("authentication state is not settled yet"),
				})
				return
			}
			if d.Redirect != "" {
				deny(w, r, st, d.Redirect)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetAuthStateInContext(r.Context(), st)))
		})
	}
}

type verdict struct {
	decision domainauth.Decision
	state    domainauth.State
}

// decide waits for the first state, as seen by the holder of sid, the guard is not pending on.
func (g *Guard) decide(
	ctx context.Context,
	sid string,
	judge func(domainauth.State) domainauth.Decision,
) (domainauth.Decision, domainauth.State, error) {
	ch := make(chan verdict, 1)
	stop := g.Auth.Watch(func(s domainauth.State) {
		s = bindState(sid, s)
		d := judge(s)
		if d.Pending {
			return
		}
		select {
		case ch <- verdict{decision: d, state: s}:
		default:
		}
	})
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, g.wait())
	defer cancel()
	select {
	case v := <-ch:
		return v.decision, v.state, nil
	case <-ctx.Done():
		return domainauth.Decision{Pending: true}, bindState(sid, g.Auth.Snapshot()), ctx.Err()
	}
}

// deny navigates browsers and answers API clients with 401 or 403.
// A redirect back to the requested path, which an unknown role produces, is answered with 403.
func deny(w http.ResponseWriter, r *http.Request, st domainauth.State, target string) {
	if isBrowserRequest(r) && target != r.URL.Path {
		var nav ports.Navigator = redirectNavigator{w: w, r: r}
		nav.Redirect(target)
		return
	}
	if !st.IsAuthenticated {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	WriteJSON(w, http.StatusForbidden, map[string]string{
		"error":       "insufficient_permissions",
		"message":     "insufficient permissions",
		"redirect_to": target,
	})
}

// redirectNavigator is a ports.Navigator bound to one HTTP exchange.
type redirectNavigator struct {
	w http.ResponseWriter
	r *http.Request
}

func (n redirectNavigator) Redirect(path string) {
	http.Redirect(n.w, n.r, path, http.StatusSeeOther)
}

// isBrowserRequest determines if a request is from a browser based on:
// 1. Path prefix - API routes start with /api/
// 2. Accept header - browsers typically accept text/html.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}

// wantsJSON reports whether a non-API request asked for a JSON reply.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}
