package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withCSRF gives a cookie-less client its own valid double-submit pair.
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: "own-token"})
	req.Header.Set(DefaultCSRFHeaderName, "own-token")
	return req
}

func TestBindState(t *testing.T) {
	sess := &domainauth.Session{ID: "sess-A1", User: domainauth.User{ID: "A1"}}
	signedIn := domainauth.State{
		User:            &sess.User,
		Session:         sess,
		Role:            domainauth.RoleAdmin,
		IsAuthenticated: true,
	}
	tests := []struct {
		name     string
		sid      string
		state    domainauth.State
		wantAuth bool
		wantLoad bool
	}{
		{name: "holder", sid: "sess-A1", state: signedIn, wantAuth: true},
		{name: "no credential", sid: "", state: signedIn},
		{name: "other credential", sid: "sess-X", state: signedIn},
		{name: "credential while loading", sid: "sess-A1", state: domainauth.InitialState(), wantLoad: true},
		{name: "no credential while loading", sid: "", state: domainauth.InitialState()},
		{name: "credential after sign out", sid: "sess-A1", state: domainauth.SignedOutState()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bindState(tt.sid, tt.state)
			assert.Equal(t, tt.wantAuth, got.IsAuthenticated)
			assert.Equal(t, tt.wantLoad, got.Loading)
			if !tt.wantAuth {
				assert.Nil(t, got.Session)
				assert.Empty(t, got.Role)
			}
		})
	}
}

func TestGuard_ClientsWithoutTheSessionAreVisitors(t *testing.T) {
	h, _, cache := newAdminHarness(t)

	rec := h.doAnonymous(browserRequest(http.MethodGet, "/admin/dashboard"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, domainauth.SignInPath, rec.Header().Get("Location"))

	rec = h.doAnonymous(apiRequest(http.MethodGet, "/api/roles", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.doAnonymous(withCSRF(apiRequest(http.MethodPut, "/api/roles/attacker", strings.NewReader(`{"role":"admin"}`))))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "attacker")

	forged := withCSRF(apiRequest(http.MethodDelete, "/api/roles/admin-1", nil))
	forged.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-guess"})
	rec = h.doAnonymous(forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, cache.Users())

	page := h.doAnonymous(browserRequest(http.MethodGet, "/auth"))
	assert.Equal(t, http.StatusOK, page.Code)
	assert.NotContains(t, page.Body.String(), "Sign out")

	// The signed-in browser keeps its access.
	rec = h.do(browserRequest(http.MethodGet, "/admin/dashboard"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus_OnlyTheHolderSeesTheSession(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "A1", domainauth.RoleAdmin)

	rec := h.doAnonymous(apiRequest(http.MethodGet, "/auth/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["is_authenticated"])
	assert.Nil(t, body["session"])
	assert.NotContains(t, rec.Body.String(), "sess-A1")
}

func TestLogout_WithoutTheSessionSignsNobodyOut(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "J1", domainauth.RoleJobseeker)

	rec := h.doAnonymous(withCSRF(browserRequest(http.MethodPost, "/auth/logout")))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, domainauth.SignInPath, rec.Header().Get("Location"))
	assert.True(t, h.ctrl.Snapshot().IsAuthenticated)

	cleared := cookieByName(rec.Result().Cookies(), sessionCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
}
