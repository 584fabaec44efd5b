package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.SessionIssuer    = (*FakeIdentityProvider)(nil)
	_ ports.RoleStore        = (*MemoryRoleStore)(nil)
	_ ports.Navigator        = (*RecordingNavigator)(nil)
	_ ports.LoginProvider    = (*MockLoginProvider)(nil)
)

// FakeIdentityProvider is an in-memory identity provider whose events are driven by the test.
type FakeIdentityProvider struct {
	// CurrentFunc overrides CurrentSession when set.
	CurrentFunc func(ctx context.Context) (*domainauth.Session, error)
	// SubscribeErr is returned from Subscribe when set.
	SubscribeErr error
	// SignOutErr is returned from SignOut when set.
	SignOutErr error

	mu      sync.Mutex
	current *domainauth.Session
	subs    map[int]ports.SessionChangeFunc
	nextSub int
	calls   []string
}

// NewFakeIdentityProvider creates a provider with no current session.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{subs: make(map[int]ports.SessionChangeFunc)}
}

type fakeSubscription struct {
	p  *FakeIdentityProvider
	id int
}

func (s fakeSubscription) Unsubscribe() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	delete(s.p.subs, s.id)
	s.p.calls = append(s.p.calls, "unsubscribe")
}

func (p *FakeIdentityProvider) Subscribe(fn ports.SessionChangeFunc) (ports.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "subscribe")
	if p.SubscribeErr != nil {
		return nil, p.SubscribeErr
	}
	if p.subs == nil {
		p.subs = make(map[int]ports.SessionChangeFunc)
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return fakeSubscription{p: p, id: id}, nil
}

func (p *FakeIdentityProvider) CurrentSession(ctx context.Context) (*domainauth.Session, error) {
	p.mu.Lock()
	p.calls = append(p.calls, "current")
	fn := p.CurrentFunc
	cur := p.current
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if cur == nil {
		return nil, nil
	}
	cp := *cur
	return &cp, nil
}

func (p *FakeIdentityProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.calls = append(p.calls, "sign_out")
	err := p.SignOutErr
	if err == nil {
		p.current = nil
	}
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.Emit(domainauth.EventSignedOut, nil)
	return nil
}

// SignIn establishes a session for ident and notifies subscribers.
func (p *FakeIdentityProvider) SignIn(_ context.Context, ident domainauth.Identity) (domainauth.Session, error) {
	if ident.UserID == "" {
		return domainauth.Session{}, fmt.Errorf("fake provider: user id is required")
	}
	if ident.ExpiresAt.IsZero() {
		ident.ExpiresAt = time.Now().Add(time.Hour)
	}
	sess := domainauth.NewSession("sess-"+ident.UserID, ident)
	p.Emit(domainauth.EventSignedIn, &sess)
	return sess, nil
}

// SetCurrent replaces the session returned by CurrentSession without notifying subscribers.
func (p *FakeIdentityProvider) SetCurrent(sess *domainauth.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = sess
}

// Emit records sess as current and delivers the event to every subscriber.
func (p *FakeIdentityProvider) Emit(event domainauth.Event, sess *domainauth.Session) {
	p.mu.Lock()
	if event != domainauth.EventSubscriptionLost {
		p.current = sess
	}
	fns := make([]ports.SessionChangeFunc, 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(event, sess)
	}
}

// Calls returns the provider calls in the order they were made.
func (p *FakeIdentityProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Subscribers reports the number of live subscriptions.
func (p *FakeIdentityProvider) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// MemoryRoleStore is an in-memory role store for unit tests.
type MemoryRoleStore struct {
	// LookupFunc overrides the map lookup when set.
	LookupFunc func(ctx context.Context, userID string) (domainauth.Role, error)

	mu    sync.Mutex
	roles map[string]domainauth.Role
	calls int
}

// NewMemoryRoleStore creates a store seeded with the given assignments.
func NewMemoryRoleStore(seed map[string]domainauth.Role) *MemoryRoleStore {
	roles := make(map[string]domainauth.Role, len(seed))
	for k, v := range seed {
		roles[k] = v
	}
	return &MemoryRoleStore{roles: roles}
}

func (m *MemoryRoleStore) LookupRole(ctx context.Context, userID string) (domainauth.Role, error) {
	m.mu.Lock()
	m.calls++
	fn := m.LookupFunc
	role, ok := m.roles[userID]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, userID)
	}
	if !ok {
		return "", ports.ErrRoleNotFound
	}
	return role, nil
}

// Assign sets the role for a user.
func (m *MemoryRoleStore) Assign(userID string, role domainauth.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles == nil {
		m.roles = make(map[string]domainauth.Role)
	}
	m.roles[userID] = role
}

// Calls returns the number of lookups performed.
func (m *MemoryRoleStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// RecordingNavigator records every redirect it is asked to perform.
type RecordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *RecordingNavigator) Redirect(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

// Paths returns the recorded redirects in order.
func (n *RecordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// Last returns the most recent redirect or "".
func (n *RecordingNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.paths) == 0 {
		return ""
	}
	return n.paths[len(n.paths)-1]
}

// MockLoginProvider simulates an IdP login flow with deterministic state/nonce handling.
type MockLoginProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL     string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockLoginProvider creates a MockLoginProvider with sensible defaults.
func NewMockLoginProvider() *MockLoginProvider {
	return &MockLoginProvider{
		AuthURL: "https://mock-idp/auth",
		DefaultUser: domainauth.Identity{
			UserID:    "mock-user-1",
			FirstName: "Mock",
			LastName:  "User",
			Email:     "mock.user@example.com",
		},
	}
}

func (m *MockLoginProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	return authURL, fmt.Sprintf("state-%d", n), fmt.Sprintf("nonce-%d", n), nil
}

func (m *MockLoginProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	user := m.DefaultUser
	if user.UserID == "" {
		user.UserID = "mock-user-1"
	}
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}
