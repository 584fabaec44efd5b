// Package redis provides Redis-based adapters for JobLink auth.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "joblink:auth:"

var (
	_ ports.IdentityProvider = (*SessionProvider)(nil)
	_ ports.SessionIssuer    = (*SessionProvider)(nil)
)

// SessionProviderOptions configure a SessionProvider.
type SessionProviderOptions struct {
	// Prefix namespaces the session key and event channel. Defaults to "joblink:auth:".
	Prefix string
	Logger *slog.Logger
}

// SessionProvider keeps the current session in Redis and fans session changes out over pub/sub.
// The session lives under <prefix>current with a TTL derived from its ExpiresAt; changes are
// published as JSON on <prefix>events so every process sharing the Redis sees them.
type SessionProvider struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// sessionMessage is the pub/sub payload.
type sessionMessage struct {
	Event   domainauth.Event    `json:"event"`
	Session *domainauth.Session `json:"session,omitempty"`
}

// NewSessionProvider creates a Redis-backed identity provider.
func NewSessionProvider(client redis.UniversalClient, opts SessionProviderOptions) *SessionProvider {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionProvider{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis_session_provider"),
		now:    time.Now,
	}
}

func (p *SessionProvider) sessionKey() string { return p.prefix + "current" }

func (p *SessionProvider) channel() string { return p.prefix + "events" }

// Subscribe listens on the event channel. The subscription is confirmed before Subscribe returns.
// If the connection drops, fn receives a single SUBSCRIPTION_LOST event and the handle is dead.
func (p *SessionProvider) Subscribe(fn ports.SessionChangeFunc) (ports.Subscription, error) {
	if fn == nil {
		return nil, errors.New("redis session provider: nil session callback")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := p.client.Subscribe(ctx, p.channel())
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		return nil, errors.Join(fmt.Errorf("subscribe %s: %w", p.channel(), err), ps.Close())
	}

	sub := &pubsubSubscription{ps: ps, cancel: cancel}
	go p.receiveLoop(ctx, sub, fn)
	return sub, nil
}

func (p *SessionProvider) receiveLoop(ctx context.Context, sub *pubsubSubscription, fn ports.SessionChangeFunc) {
	for {
		msg, err := sub.ps.ReceiveMessage(ctx)
		if err != nil {
			if sub.isClosed() || ctx.Err() != nil {
				return
			}
			p.logger.Warn("session event stream lost", "channel", p.channel(), "error", err)
			sub.release()
			fn(domainauth.EventSubscriptionLost, nil)
			return
		}

		var m sessionMessage
		if uerr := json.Unmarshal([]byte(msg.Payload), &m); uerr != nil {
			p.logger.Warn("dropping malformed session event", "error", uerr)
			continue
		}
		if sub.isClosed() {
			return
		}
		fn(m.Event, m.Session)
	}
}

type pubsubSubscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (s *pubsubSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// release marks the subscription closed and tears down the pub/sub connection.
func (s *pubsubSubscription) release() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	_ = s.ps.Close()
}

func (s *pubsubSubscription) Unsubscribe() {
	s.release()
}

// CurrentSession returns the stored session, or nil when none is stored or it has expired.
func (p *SessionProvider) CurrentSession(ctx context.Context) (*domainauth.Session, error) {
	data, err := p.client.Get(ctx, p.sessionKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if uerr := json.Unmarshal([]byte(data), &sess); uerr != nil {
		return nil, fmt.Errorf("unmarshal session: %w", uerr)
	}

	// Redis TTL normally removes it first.
	if sess.Expired(p.now()) {
		if derr := p.client.Del(ctx, p.sessionKey()).Err(); derr != nil {
			return nil, fmt.Errorf("cleanup expired session: %w", derr)
		}
		return nil, nil
	}
	return &sess, nil
}

// SignIn stores a fresh session for ident and publishes SIGNED_IN, or TOKEN_REFRESHED when
// the same user was already signed in.
func (p *SessionProvider) SignIn(ctx context.Context, ident domainauth.Identity) (domainauth.Session, error) {
	if ident.UserID == "" {
		return domainauth.Session{}, errors.New("user id cannot be empty")
	}
	ttl := ident.ExpiresAt.Sub(p.now())
	if ttl <= 0 {
		return domainauth.Session{}, errors.New("session is expired")
	}

	sess := domainauth.NewSession(uuid.NewString(), ident)
	data, err := json.Marshal(sess)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("marshal session: %w", err)
	}

	prev, err := p.client.SetArgs(ctx, p.sessionKey(), data, redis.SetArgs{TTL: ttl, Get: true}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domainauth.Session{}, fmt.Errorf("redis set: %w", err)
	}

	event := domainauth.EventSignedIn
	if prev != "" {
		var old domainauth.Session
		if json.Unmarshal([]byte(prev), &old) == nil && old.User.ID == sess.User.ID {
			event = domainauth.EventTokenRefreshed
		}
	}
	if perr := p.publish(ctx, event, &sess); perr != nil {
		return sess, perr
	}
	return sess, nil
}

// SignOut removes the stored session and publishes SIGNED_OUT when one existed.
func (p *SessionProvider) SignOut(ctx context.Context) error {
	n, err := p.client.Del(ctx, p.sessionKey()).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if n == 0 {
		return nil
	}
	return p.publish(ctx, domainauth.EventSignedOut, nil)
}

func (p *SessionProvider) publish(ctx context.Context, event domainauth.Event, sess *domainauth.Session) error {
	data, err := json.Marshal(sessionMessage{Event: event, Session: sess})
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel(), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}
