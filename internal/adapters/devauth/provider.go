package devauth

// Package devauth provides a config-driven, in-process identity provider for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
)

var (
	_ ports.IdentityProvider = (*Provider)(nil)
	_ ports.SessionIssuer    = (*Provider)(nil)
	_ ports.LoginProvider    = (*Provider)(nil)
)

// Config controls the dev auth provider behavior.
// UserID and Email are required.
type Config struct {
	UserID          string
	Email           string
	FirstName       string
	LastName        string
	SessionDuration time.Duration // default 8h when zero
}

// Provider is a single-session identity provider held in memory.
//
// It also short-circuits the OAuth flow: Begin redirects back to our own callback with
// locally generated state and nonce, and Exchange ignores the code and returns the
// configured identity.
//
// Session changes are delivered to subscribers synchronously while the provider lock is
// held, so a subscriber that calls back into the provider from its callback deadlocks.
type Provider struct {
	identity        domainauth.Identity
	sessionDuration time.Duration
	now             func() time.Time

	mu      sync.Mutex
	current *domainauth.Session
	subs    map[uint64]ports.SessionChangeFunc
	nextSub uint64
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	return &Provider{
		identity: domainauth.Identity{
			UserID:    cfg.UserID,
			Email:     cfg.Email,
			FirstName: cfg.FirstName,
			LastName:  cfg.LastName,
		},
		sessionDuration: dur,
		now:             time.Now,
		subs:            make(map[uint64]ports.SessionChangeFunc),
	}, nil
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	// Our standard handler expects GET /auth/callback?code=...&state=...
	authURL := "/auth/callback?code=dev&state=" + state
	return authURL, state, nonce, nil
}

// Exchange ignores the provided code/state/nonce (validation handled by handler) and returns the dev identity.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
	ident := p.identity
	ident.ExpiresAt = p.now().Add(p.sessionDuration)
	return ident, nil
}

// Subscribe registers fn for session changes.
func (p *Provider) Subscribe(fn ports.SessionChangeFunc) (ports.Subscription, error) {
	if fn == nil {
		return nil, errors.New("dev auth: nil session callback")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return &subscription{p: p, id: id}, nil
}

type subscription struct {
	p    *Provider
	id   uint64
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.p.mu.Lock()
		defer s.p.mu.Unlock()
		delete(s.p.subs, s.id)
	})
}

// CurrentSession returns the live session, or nil when nobody is signed in or it has expired.
func (p *Provider) CurrentSession(_ context.Context) (*domainauth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, nil
	}
	if p.current.Expired(p.now()) {
		p.current = nil
		return nil, nil
	}
	cp := *p.current
	return &cp, nil
}

// SignIn replaces the current session with a fresh one for ident.
// An empty identity signs in the configured dev user.
func (p *Provider) SignIn(_ context.Context, ident domainauth.Identity) (domainauth.Session, error) {
	if ident.UserID == "" {
		ident = p.identity
	}
	if ident.ExpiresAt.IsZero() {
		ident.ExpiresAt = p.now().Add(p.sessionDuration)
	}
	sess := domainauth.NewSession(uuid.NewString(), ident)

	p.mu.Lock()
	defer p.mu.Unlock()
	event := domainauth.EventSignedIn
	if p.current != nil && p.current.User.ID == ident.UserID {
		event = domainauth.EventTokenRefreshed
	}
	p.current = &sess
	p.deliverLocked(event, &sess)
	return sess, nil
}

// SignOut clears the current session and notifies subscribers.
func (p *Provider) SignOut(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	p.current = nil
	p.deliverLocked(domainauth.EventSignedOut, nil)
	return nil
}

func (p *Provider) deliverLocked(event domainauth.Event, sess *domainauth.Session) {
	for _, fn := range p.subs {
		var cp *domainauth.Session
		if sess != nil {
			s := *sess
			cp = &s
		}
		fn(event, cp)
	}
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
