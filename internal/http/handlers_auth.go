package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
)

const (
	stateCookie    = "oauth_state"
	nonceCookie    = "oauth_nonce"
	redirectCookie = "post_login_redirect"
	// loginCookieMaxAge bounds how long a started login may take.
	loginCookieMaxAge = 600
)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Auth     AuthSource
	Login    ports.LoginProvider
	Sessions ports.SessionIssuer
	Pages    *PageRenderer
	// CallbackURL is the absolute URL of GET /auth/callback handed to the login provider.
	CallbackURL  string
	CookieDomain string
	// StatusWait bounds how long /auth/status and the callback wait on the controller.
	StatusWait time.Duration
	Logger     *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// statusResponse is the JSON body of GET /auth/status.
type statusResponse struct {
	domainauth.State
	DashboardPath string `json:"dashboard_path"`
}

// Status reports the controller state and the dashboard for the current role.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.statusWait())
	defer cancel()

	// A timeout still answers with the loading snapshot.
	st, _ := h.Auth.WaitLoaded(ctx)
	st = requestState(r, st)
	WriteJSON(w, http.StatusOK, statusResponse{
		State:         st,
		DashboardPath: domainauth.DashboardPath(st.Role),
	})
}

// SignInPage renders the public landing page.
// GET / and GET /auth.
func (h *AuthHandlers) SignInPage(w http.ResponseWriter, r *http.Request) {
	st, ok := AuthStateFromContext(r.Context())
	if !ok {
		st = requestState(r, h.Auth.Snapshot())
	}
	data := newPageData("Sign in", st)
	if r.URL.Query().Get("error") == "login_failed" {
		data.Error = "Sign in did not complete. Please try again."
	}
	h.Pages.Render(w, r, http.StatusOK, "signin", data)
}

// Dashboard renders the landing page of the role the guard admitted.
func (h *AuthHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	st, ok := AuthStateFromContext(r.Context())
	if !ok {
		st = requestState(r, h.Auth.Snapshot())
	}
	h.Pages.Render(w, r, http.StatusOK, "dashboard", newPageData(roleTitle(st.Role)+" dashboard", st))
}

// StartLogin handles the login initiation endpoint.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) StartLogin(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	authURL, state, nonce, err := h.Login.Begin(r.Context(), ports.BeginInput{RedirectURL: h.CallbackURL})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", slog.Any("error", err))
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("could not start sign in"),
		})
		return
	}

	h.setLoginCookie(w, r, stateCookie, state)
	h.setLoginCookie(w, r, nonceCookie, nonce)
	h.setLoginCookie(w, r, redirectCookie, redirectURI)

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the login flow, issues a session through the identity provider and
// hands the browser its session cookie. The controller learns about the session from the
// session stream, not from this handler.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}
	if state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_state",
			Err:     errors.New("state parameter is required"),
		})
		return
	}

	sc, err := r.Cookie(stateCookie)
	if err != nil || sc.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nc, err := r.Cookie(nonceCookie)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}

	ident, err := h.Login.Exchange(r.Context(), ports.ExchangeInput{Code: code, State: state, Nonce: nc.Value})
	if err != nil {
		h.logger().WarnContext(r.Context(), "login exchange failed", slog.Any("error", err))
		http.Redirect(w, r, domainauth.SignInPath+"?error=login_failed", http.StatusSeeOther)
		return
	}
	sess, err := h.Sessions.SignIn(r.Context(), ident)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "issue session failed",
			slog.String("user_id", ident.UserID),
			slog.Any("error", err))
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_completion_failed",
			Err:     errors.New("could not complete sign in"),
		})
		return
	}

	h.setSessionCookie(w, r, sess)
	h.awaitUser(r.Context(), ident.UserID)

	h.clearCookie(w, r, stateCookie)
	h.clearCookie(w, r, nonceCookie)
	http.Redirect(w, r, h.postLoginRedirect(w, r), http.StatusFound)
}

// Logout signs out the session the request holds and sends the visitor back to the sign-in
// page. Local state is cleared even when the provider call fails. A request without the
// current session only loses its own cookie.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if st := requestState(r, h.Auth.Snapshot()); st.IsAuthenticated {
		if err := h.Auth.SignOut(r.Context()); err != nil {
			h.logger().WarnContext(r.Context(), "provider sign out failed", slog.Any("error", err))
		}
	} else {
		h.logger().DebugContext(r.Context(), "logout without the current session")
	}
	h.clearCookie(w, r, sessionCookie)

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": domainauth.SignInPath,
		})
		return
	}
	http.Redirect(w, r, domainauth.SignInPath, http.StatusSeeOther)
}

// awaitUser holds the callback until the controller has observed userID, so the
// redirect target's guard sees the new session. It gives up after StatusWait.
func (h *AuthHandlers) awaitUser(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(ctx, h.statusWait())
	defer cancel()

	seen := make(chan struct{})
	var once sync.Once
	stop := h.Auth.Watch(func(s domainauth.State) {
		if s.UserID() == userID {
			once.Do(func() { close(seen) })
		}
	})
	defer stop()

	select {
	case <-seen:
	case <-ctx.Done():
		h.logger().WarnContext(ctx, "session not observed before redirect", slog.String("user_id", userID))
	}
}

func (h *AuthHandlers) statusWait() time.Duration {
	if h.StatusWait > 0 {
		return h.StatusWait
	}
	return defaultGuardWait
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (h *AuthHandlers) setLoginCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   loginCookieMaxAge,
	})
}

// clearCookie mirrors the attributes used when setting so browsers match and delete it.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// postLoginRedirect returns the stored destination and clears its cookie.
// Without one, visitors land on the sign-in page, whose guard forwards them to their dashboard.
func (h *AuthHandlers) postLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(redirectCookie)
	if err != nil {
		return domainauth.SignInPath
	}
	h.clearCookie(w, r, redirectCookie)
	if c.Value == "" || c.Value == "/" {
		return domainauth.SignInPath
	}
	return safeRedirectPath(c.Value)
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
