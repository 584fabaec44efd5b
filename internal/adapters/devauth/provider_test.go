package devauth

import (
	"context"
	"strings"
	"testing"
	"time"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
	"github.com/joblink/joblink-web/internal/service"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	prov, err := NewProvider(Config{UserID: "dev-user", Email: "dev@example.com", FirstName: "Dev"})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	return prov
}

func TestNewProvider_Validation(t *testing.T) {
	if _, err := NewProvider(Config{Email: "dev@example.com"}); err == nil {
		t.Fatal("expected error without UserID")
	}
	if _, err := NewProvider(Config{UserID: "dev-user"}); err == nil {
		t.Fatal("expected error without Email")
	}
}

func TestProvider_BeginAndExchange(t *testing.T) {
	prov := newTestProvider(t)
	url, state, nonce, err := prov.Begin(context.Background(), ports.BeginInput{RedirectURL: "/"})
	if err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	if !strings.HasPrefix(url, "/auth/callback?") {
		t.Fatalf("unexpected authURL: %s", url)
	}
	if len(state) != 24 || len(nonce) != 24 {
		t.Fatalf("state and nonce should be 24 chars, got %q %q", state, nonce)
	}
	id, err := prov.Exchange(context.Background(), ports.ExchangeInput{Code: "dev", State: state, Nonce: nonce})
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if id.UserID != "dev-user" || id.Email != "dev@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if time.Until(id.ExpiresAt) < 7*time.Hour {
		t.Fatalf("expected default 8h expiry, got %v", id.ExpiresAt)
	}
}

func TestProvider_SessionLifecycle(t *testing.T) {
	prov := newTestProvider(t)
	ctx := context.Background()

	var events []domainauth.Event
	sub, err := prov.Subscribe(func(ev domainauth.Event, _ *domainauth.Session) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	if cur, _ := prov.CurrentSession(ctx); cur != nil {
		t.Fatalf("expected no session, got %+v", cur)
	}

	first, err := prov.SignIn(ctx, domainauth.Identity{})
	if err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	if first.User.ID != "dev-user" || first.ID == "" {
		t.Fatalf("unexpected session: %+v", first)
	}
	second, _ := prov.SignIn(ctx, domainauth.Identity{})
	if second.ID == first.ID {
		t.Fatal("expected a fresh session id")
	}

	cur, err := prov.CurrentSession(ctx)
	if err != nil || cur == nil || cur.ID != second.ID {
		t.Fatalf("CurrentSession = %+v, %v", cur, err)
	}

	if err := prov.SignOut(ctx); err != nil {
		t.Fatalf("SignOut error: %v", err)
	}
	// Signing out twice is silent.
	_ = prov.SignOut(ctx)

	sub.Unsubscribe()
	sub.Unsubscribe()
	_, _ = prov.SignIn(ctx, domainauth.Identity{})

	want := []domainauth.Event{domainauth.EventSignedIn, domainauth.EventTokenRefreshed, domainauth.EventSignedOut}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestProvider_ExpiredSessionIsDropped(t *testing.T) {
	prov := newTestProvider(t)
	now := time.Now()
	prov.now = func() time.Time { return now }

	if _, err := prov.SignIn(context.Background(), domainauth.Identity{UserID: "u1", ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if cur, _ := prov.CurrentSession(context.Background()); cur != nil {
		t.Fatalf("expected expired session to be dropped, got %+v", cur)
	}
}

// The provider delivers while holding its lock; the controller must not call back into it.
func TestProvider_DrivesControllerWithoutDeadlock(t *testing.T) {
	prov := newTestProvider(t)
	ctrl := service.NewAuthController(service.AuthControllerOptions{Provider: prov})
	t.Cleanup(ctrl.Close)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := ctrl.WaitLoaded(ctx); err != nil {
		t.Fatalf("WaitLoaded error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = prov.SignIn(ctx, domainauth.Identity{})
		_ = ctrl.SignOut(ctx)
		_, _ = prov.SignIn(ctx, domainauth.Identity{})
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("provider calls did not return; controller re-entered the provider")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := ctrl.Snapshot()
		if st.UserID() == "dev-user" && st.Role == domainauth.RoleJobseeker {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("controller never observed the dev user: %+v", ctrl.Snapshot())
}
