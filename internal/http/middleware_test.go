package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	fakes "github.com/joblink/joblink-web/internal/mocks/auth"
	"github.com/joblink/joblink-web/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_VisitorIsSentToSignIn(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/jobseeker/dashboard", "/company/dashboard", "/admin/dashboard"} {
		t.Run(path, func(t *testing.T) {
			rec := h.do(browserRequest(http.MethodGet, path))
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, domainauth.SignInPath, rec.Header().Get("Location"))
		})
	}
}

func TestGuard_APIVisitorGets401(t *testing.T) {
	h := newHarness(t, func(s *RouterServices) { s.Roles = &stubRoleAdmin{} })

	rec := h.do(apiRequest(http.MethodGet, "/api/roles", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication_required", body["error"])
}

func TestGuard_WrongRoleGoesToOwnDashboard(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "C1", domainauth.RoleCompany)

	rec := h.do(browserRequest(http.MethodGet, "/admin/dashboard"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, domainauth.CompanyDashboardPath, rec.Header().Get("Location"))

	rec = h.do(browserRequest(http.MethodGet, "/company/dashboard"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Company dashboard")
	assert.Contains(t, rec.Body.String(), "Test C1")
}

func TestGuard_WrongRoleOnAPIGets403(t *testing.T) {
	h := newHarness(t, func(s *RouterServices) { s.Roles = &stubRoleAdmin{} })
	h.signIn(t, "J1", domainauth.RoleJobseeker)

	rec := h.do(apiRequest(http.MethodGet, "/api/roles", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domainauth.JobseekerDashboardPath, body["redirect_to"])
}

func TestGuard_UnknownRoleDoesNotLoop(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "X1", domainauth.RoleUnknown)

	rec := h.do(browserRequest(http.MethodGet, "/jobseeker/dashboard"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(browserRequest(http.MethodGet, "/company/dashboard"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, domainauth.JobseekerDashboardPath, rec.Header().Get("Location"))
}

func TestGuard_PublicPagesRedirectSignedInUsers(t *testing.T) {
	h := newHarness(t)

	rec := h.do(browserRequest(http.MethodGet, "/auth"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/auth/login")

	h.signIn(t, "A1", domainauth.RoleAdmin)
	for _, path := range []string{"/", "/auth"} {
		rec = h.do(browserRequest(http.MethodGet, path))
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, domainauth.AdminDashboardPath, rec.Header().Get("Location"), path)
	}
}

func TestGuard_HoldsRequestWhileRoleResolves(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.roles.LookupFunc = func(ctx context.Context, _ string) (domainauth.Role, error) {
		select {
		case <-release:
			return domainauth.RoleCompany, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	sess, err := h.provider.SignIn(context.Background(), domainauth.Identity{UserID: "C2"})
	require.NoError(t, err)
	h.holdSession(sess.ID)
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().Resolving }, waitFor, tick)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- h.do(browserRequest(http.MethodGet, "/company/dashboard")) }()

	select {
	case <-done:
		t.Fatal("guard answered before the role resolved")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case rec := <-done:
		assert.Equal(t, http.StatusOK, rec.Code)
	case <-time.After(waitFor):
		t.Fatal("guard never answered")
	}
}

func TestGuard_UndecidedReturns503(t *testing.T) {
	// A controller that never started stays loading.
	ctrl := service.NewAuthController(service.AuthControllerOptions{
		Provider: fakes.NewFakeIdentityProvider(),
		Logger:   discardLogger(),
	})
	t.Cleanup(ctrl.Close)
	guard := &Guard{Auth: ctrl, Wait: 30 * time.Millisecond, Logger: discardLogger()}

	handler := guard.RequireAuth("")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := browserRequest(http.MethodGet, "/jobseeker/dashboard")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-pending"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestGuard_StoresAdmittedStateInContext(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "J2", domainauth.RoleJobseeker)
	guard := &Guard{Auth: h.ctrl, Logger: discardLogger()}

	var got *domainauth.User
	handler := guard.RequireAuth(domainauth.RoleJobseeker)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = CurrentUser(r.Context())
	}))
	req := browserRequest(http.MethodGet, "/jobseeker/dashboard")
	h.attach(req)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "J2", got.ID)
}

func TestRecover(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), `"msg":"panic"`)
	assert.Contains(t, logs.String(), "boom")
}

func TestLogging_RecordsStatus(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "http", entry["msg"])
	assert.Equal(t, "/tea", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
}

func TestIsBrowserRequest(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		accept string
		want   bool
	}{
		{"html accept", "/company/dashboard", "text/html", true},
		{"no accept", "/company/dashboard", "", true},
		{"json accept", "/company/dashboard", "application/json", false},
		{"api path", "/api/roles", "text/html", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			assert.Equal(t, tt.want, isBrowserRequest(req))
		})
	}
}
