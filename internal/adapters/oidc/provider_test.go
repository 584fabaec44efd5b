package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joblink/joblink-web/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newIdPServer serves discovery, token and userinfo endpoints on one httptest server.
func newIdPServer(t *testing.T, userinfo map[string]any) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                srv.URL,
			AuthorizationEndpoint: srv.URL + "/auth",
			TokenEndpoint:         srv.URL + "/token",
			UserinfoEndpoint:      srv.URL + "/userinfo",
			JwksURI:               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userinfo)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(discoveryURL string) ProviderConfig {
	return ProviderConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scope:        "openid profile email",
		DiscoveryURL: discoveryURL,
	}
}

// createTestProvider creates a test provider with mocked discovery endpoint.
func createTestProvider(t *testing.T) *Provider {
	t.Helper()
	srv := newIdPServer(t, nil)
	provider, err := NewProvider(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	return provider
}

func TestNewProvider_Success(t *testing.T) {
	srv := newIdPServer(t, nil)

	provider, err := NewProvider(context.Background(), testConfig(srv.URL+"/.well-known/openid-configuration"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/auth", provider.config.Endpoint.AuthURL)
	assert.Equal(t, srv.URL+"/token", provider.config.Endpoint.TokenURL)
	assert.Equal(t, DefaultClaimPaths(), provider.claims)
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{
			name: "missing client ID",
			config: ProviderConfig{
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/callback",
				DiscoveryURL: "http://example.com",
			},
			errMsg: "client ID is required",
		},
		{
			name: "missing client secret",
			config: ProviderConfig{
				ClientID:     "client",
				RedirectURL:  "http://localhost/callback",
				DiscoveryURL: "http://example.com",
			},
			errMsg: "client secret is required",
		},
		{
			name:   "missing redirect URL",
			config: ProviderConfig{ClientID: "client", ClientSecret: "secret", DiscoveryURL: "http://example.com"},
			errMsg: "redirect URL is required",
		},
		{
			name: "missing discovery URL",
			config: ProviderConfig{
				ClientID:     "client",
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/callback",
			},
			errMsg: "discovery URL is required",
		},
		{
			name: "bad claim path",
			config: ProviderConfig{
				ClientID:     "client",
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/callback",
				DiscoveryURL: "http://example.com",
				Claims:       ClaimPaths{Email: "emails[0"},
			},
			errMsg: "invalid email claim path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Begin(t *testing.T) {
	provider := createTestProvider(t)

	input := ports.BeginInput{RedirectURL: "http://localhost:8080/auth/callback"}
	authURL, state, nonce, err := provider.Begin(context.Background(), input)

	require.NoError(t, err)
	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)
	assert.Contains(t, authURL, "/auth?")
	assert.Contains(t, authURL, "client_id=test-client")
	assert.Contains(t, authURL, "state="+state)
	assert.Contains(t, authURL, "nonce="+nonce)
}

func TestProvider_Begin_EmptyRedirectURL(t *testing.T) {
	provider := createTestProvider(t)

	_, _, _, err := provider.Begin(context.Background(), ports.BeginInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect URL is required")
}

func TestProvider_Exchange_ValidationErrors(t *testing.T) {
	provider := createTestProvider(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		input  ports.ExchangeInput
		errMsg string
	}{
		{"missing code", ports.ExchangeInput{State: "state", Nonce: "nonce"}, "authorization code is required"},
		{"missing state", ports.ExchangeInput{Code: "code", Nonce: "nonce"}, "state is required"},
		{"missing nonce", ports.ExchangeInput{Code: "code", State: "state"}, "nonce is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.Exchange(ctx, tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Exchange_BadCode(t *testing.T) {
	provider := createTestProvider(t)

	_, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "bad", State: "s", Nonce: "n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange code for token")
}

func TestProvider_Exchange_UserInfoWithClaimPaths(t *testing.T) {
	srv := newIdPServer(t, map[string]any{
		"sub":                "sub-123",
		"preferred_username": "jane.doe",
		"emails":             []string{"jane@example.com", "j.doe@example.com"},
		"name":               map[string]any{"given": "Jane", "family": "Doe"},
	})
	cfg := testConfig(srv.URL)
	// Without openid the ID token is skipped and everything comes from UserInfo.
	cfg.Scope = "profile email"
	cfg.Claims = ClaimPaths{
		UserID:    "preferred_username || sub",
		Email:     "emails[0]",
		FirstName: "name.given",
		LastName:  "name.family",
	}
	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)

	ident, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code", State: "s", Nonce: "n"})
	require.NoError(t, err)
	assert.Equal(t, "jane.doe", ident.UserID)
	assert.Equal(t, "jane@example.com", ident.Email)
	assert.Equal(t, "Jane", ident.FirstName)
	assert.Equal(t, "Doe", ident.LastName)
	assert.False(t, ident.ExpiresAt.IsZero())
}

func TestProvider_Exchange_NoUserID(t *testing.T) {
	srv := newIdPServer(t, map[string]any{"email": "anon@example.com"})
	cfg := testConfig(srv.URL)
	cfg.Scope = "profile email"
	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)

	_, err = provider.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code", State: "s", Nonce: "n"})
	require.Error(t, err)
}

func TestMapClaims_KeepsExistingFields(t *testing.T) {
	claims := map[string]any{
		"sub":         "sub-abc",
		"email":       "mail@example.com",
		"given_name":  "First",
		"family_name": "Last",
	}
	var f idFields
	mapClaims(DefaultClaimPaths(), claims, &f)
	assert.Equal(t, idFields{userID: "sub-abc", email: "mail@example.com", givenName: "First", familyName: "Last"}, f)

	f2 := idFields{userID: "keep", email: "keep@example.com"}
	mapClaims(DefaultClaimPaths(), claims, &f2)
	assert.Equal(t, "keep", f2.userID)
	assert.Equal(t, "keep@example.com", f2.email)
	assert.Equal(t, "First", f2.givenName)
}

func TestSearchString(t *testing.T) {
	data := map[string]any{
		"s":     "text",
		"n":     float64(42),
		"list":  []any{"first", "second"},
		"obj":   map[string]any{"k": "v"},
		"empty": []any{},
	}
	assert.Equal(t, "text", searchString("s", data))
	assert.Equal(t, "42", searchString("n", data))
	assert.Equal(t, "first", searchString("list", data))
	assert.Equal(t, "v", searchString("obj.k", data))
	assert.Empty(t, searchString("obj", data))
	assert.Empty(t, searchString("empty", data))
	assert.Empty(t, searchString("missing", data))
}

func TestGenerateRandomString(t *testing.T) {
	str1, err := generateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, str1, 16)

	str2, err := generateRandomString(32)
	require.NoError(t, err)
	assert.Len(t, str2, 32)

	str3, err := generateRandomString(16)
	require.NoError(t, err)
	assert.NotEqual(t, str1, str3)
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	idTok, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", idTok)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id_token")

	_, err = getIDTokenFromToken(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil token")
}
