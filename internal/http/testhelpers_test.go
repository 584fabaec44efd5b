package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	fakes "github.com/joblink/joblink-web/internal/mocks/auth"
	"github.com/joblink/joblink-web/internal/service"
	"github.com/stretchr/testify/require"
)

const (
	waitFor       = 2 * time.Second
	tick          = 5 * time.Millisecond
	testCSRFToken = "test-csrf-token"
)

// harness runs a real AuthController over fake ports behind the full router.
// Requests sent through do come from one browser that keeps its cookies.
type harness struct {
	provider *fakes.FakeIdentityProvider
	roles    *fakes.MemoryRoleStore
	login    *fakes.MockLoginProvider
	ctrl     *service.AuthController
	router   http.Handler

	mu  sync.Mutex
	jar map[string]*http.Cookie
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, configure ...func(*RouterServices)) *harness {
	t.Helper()
	h := &harness{
		provider: fakes.NewFakeIdentityProvider(),
		roles:    fakes.NewMemoryRoleStore(nil),
		login:    fakes.NewMockLoginProvider(),
		jar:      map[string]*http.Cookie{},
	}
	h.ctrl = service.NewAuthController(service.AuthControllerOptions{
		Provider: h.provider,
		Roles:    h.roles,
		Logger:   discardLogger(),
	})
	t.Cleanup(h.ctrl.Close)
	require.NoError(t, h.ctrl.Start(context.Background()))

	services := RouterServices{
		Auth:      h.ctrl,
		Login:     h.login,
		Sessions:  h.provider,
		BaseURL:   "http://joblink.test",
		GuardWait: time.Second,
		Logger:    discardLogger(),
	}
	for _, fn := range configure {
		fn(&services)
	}
	router, err := NewRouter(services)
	require.NoError(t, err)
	h.router = router
	return h
}

// signIn establishes a session for userID with role, hands its credential to the harness
// browser and waits until the controller has resolved it.
func (h *harness) signIn(t *testing.T, userID string, role domainauth.Role) {
	t.Helper()
	h.roles.Assign(userID, role)
	sess, err := h.provider.SignIn(context.Background(), domainauth.Identity{
		UserID:    userID,
		FirstName: "Test",
		LastName:  strings.ToUpper(userID),
		Email:     userID + "@example.com",
	})
	require.NoError(t, err)
	h.holdSession(sess.ID)
	require.Eventually(t, func() bool {
		s := h.ctrl.Snapshot()
		return s.UserID() == userID && !s.Resolving && s.Role == role
	}, waitFor, tick)
}

// holdSession stores a session cookie and a CSRF token in the harness browser.
func (h *harness) holdSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jar[sessionCookie] = &http.Cookie{Name: sessionCookie, Value: id}
	h.jar[DefaultCSRFCookieName] = &http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRFToken}
}

// do sends req from the harness browser: stored cookies are attached, the CSRF token is
// echoed on state-changing methods and cookies set by the response are kept.
func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	h.attach(req)
	rec := h.doAnonymous(req)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range rec.Result().Cookies() {
		switch {
		case c.Name != sessionCookie && c.Name != DefaultCSRFCookieName:
		case c.MaxAge < 0:
			delete(h.jar, c.Name)
		default:
			h.jar[c.Name] = c
		}
	}
	return rec
}

// doAnonymous sends req as it is, from a client with no cookies of its own.
func (h *harness) doAnonymous(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) attach(req *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, c := range h.jar {
		if _, err := req.Cookie(name); err != nil {
			req.AddCookie(&http.Cookie{Name: name, Value: c.Value})
		}
	}
	if c, ok := h.jar[DefaultCSRFCookieName]; ok && requiresCSRFValidation(req.Method) &&
		req.Header.Get(DefaultCSRFHeaderName) == "" {
		req.Header.Set(DefaultCSRFHeaderName, c.Value)
	}
}

func browserRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

func apiRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}
