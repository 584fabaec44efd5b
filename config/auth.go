package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the login flow the application offers.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock signs in a fixed development identity (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// SessionBackend selects where sessions live.
type SessionBackend string

const (
	// SessionBackendMemory keeps the session in process.
	SessionBackendMemory SessionBackend = "memory"
	// SessionBackendRedis stores the session in Redis and streams changes over pub/sub.
	SessionBackendRedis SessionBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionBackend.
func (s *SessionBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "memory", "redis":
		*s = SessionBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionBackend: %q (valid options: memory, redis)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`

	// JMESPath expressions evaluated against ID token and UserInfo claims. Empty uses the OIDC standard claim.
	UserIDClaim    string `env:"USER_ID_CLAIM"`
	EmailClaim     string `env:"EMAIL_CLAIM"`
	FirstNameClaim string `env:"FIRST_NAME_CLAIM"`
	LastNameClaim  string `env:"LAST_NAME_CLAIM"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID          string        `env:"USER_ID"          envDefault:"dev-user"`
	Email           string        `env:"EMAIL"            envDefault:"dev@example.com"`
	FirstName       string        `env:"FIRST_NAME"       envDefault:"Dev"`
	LastName        string        `env:"LAST_NAME"        envDefault:"User"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"8h"`
}

// RoleConfig controls how roles are assigned and resolved.
type RoleConfig struct {
	// Static assignments, semicolon separated user ids. They take precedence over the database.
	AdminUsers     []string `env:"ADMIN_USERS"     envSeparator:";"`
	CompanyUsers   []string `env:"COMPANY_USERS"   envSeparator:";"`
	JobseekerUsers []string `env:"JOBSEEKER_USERS" envSeparator:";"`

	// CacheTTL enables the Redis role cache when > 0.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"0s"`
	// LookupTimeout bounds one role lookup.
	LookupTimeout time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"10s"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which login flow to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// SessionBackend determines where sessions are stored.
	SessionBackend SessionBackend `env:"AUTH_SESSION_BACKEND" envDefault:"memory"`
	// SessionPrefix namespaces Redis keys and channels when SessionBackend=redis.
	SessionPrefix string `env:"AUTH_SESSION_PREFIX" envDefault:"joblink:auth:"`

	// ResubscribeInterval spaces re-subscription attempts after the session stream drops.
	ResubscribeInterval time.Duration `env:"AUTH_RESUBSCRIBE_INTERVAL" envDefault:"2s"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// Roles configuration.
	Roles RoleConfig `envPrefix:"AUTH_ROLE_"`
}

// Sanitize trims role lists and clamps durations.
func (a *AuthConfig) Sanitize() {
	a.Roles.AdminUsers = cleanList(a.Roles.AdminUsers)
	a.Roles.CompanyUsers = cleanList(a.Roles.CompanyUsers)
	a.Roles.JobseekerUsers = cleanList(a.Roles.JobseekerUsers)
	if a.Roles.LookupTimeout <= 0 {
		a.Roles.LookupTimeout = 10 * time.Second
	}
	if a.Roles.CacheTTL < 0 {
		a.Roles.CacheTTL = 0
	}
	if a.ResubscribeInterval <= 0 {
		a.ResubscribeInterval = 2 * time.Second
	}
	if a.DevAuth.SessionDuration <= 0 {
		a.DevAuth.SessionDuration = 8 * time.Hour
	}
	if a.SessionPrefix = strings.TrimSpace(a.SessionPrefix); a.SessionPrefix == "" {
		a.SessionPrefix = "joblink:auth:"
	}
}

func cleanList(in []string) []string {
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
