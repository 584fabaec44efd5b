package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	obserrors "github.com/joblink/joblink-web/internal/observability/errors"
	"github.com/joblink/joblink-web/internal/observability/metrics"
	"github.com/joblink/joblink-web/internal/observability/notify"
	"github.com/joblink/joblink-web/internal/observability/statsd"
	"github.com/joblink/joblink-web/internal/ports"
	"golang.org/x/time/rate"
)

const (
	defaultRoleLookupTimeout   = 10 * time.Second
	defaultResubscribeInterval = 2 * time.Second
	defaultAlertInterval       = time.Minute
	alertSendTimeout           = 10 * time.Second
)

// Alert components.
const (
	alertSessionStream = "session_stream"
	alertRoleStore     = "role_store"
)

var (
	errControllerStarted = errors.New("auth controller already started")
	errControllerClosed  = errors.New("auth controller closed")
)

// AuthControllerOptions groups dependencies for AuthController.
type AuthControllerOptions struct {
	Provider ports.IdentityProvider
	Roles    ports.RoleStore
	Logger   *slog.Logger
	Metrics  statsd.Sink
	// Alerts receives connectivity alerts for the session stream and role store. Optional.
	Alerts notify.Sink

	// LookupTimeout bounds a single role lookup. Defaults to 10s.
	LookupTimeout time.Duration
	// ResubscribeInterval spaces re-subscription attempts after the session stream is lost. Defaults to 2s.
	ResubscribeInterval time.Duration
	// AlertInterval is the minimum spacing between connectivity alerts. Defaults to 1m.
	AlertInterval time.Duration
}

// AuthController is the single source of truth for who is signed in and with what role.
//
// State is written only by tasks on the controller's event loop; SignOut and Close reset it
// under the same mutex. Provider callbacks only enqueue work, so the controller never calls
// back into the provider from inside its event delivery.
type AuthController struct {
	provider      ports.IdentityProvider
	roles         ports.RoleStore
	logger        *slog.Logger
	metrics       statsd.Sink
	lookupTimeout time.Duration
	resubscribe   *rate.Limiter
	alerts        notify.Sink
	alertLimit    *rate.Limiter
	loop          *eventLoop

	mu        sync.Mutex
	state     domainauth.State
	loaded    chan struct{} // closed when state.Loading turns false
	sub       ports.Subscription
	subGen    uint64 // bumped on every (re)initialization
	epoch     uint64 // bumped on every local reset; older queued work is dropped
	observers map[uint64]func(domainauth.State)
	nextObs   uint64
	started   bool
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewAuthController constructs a controller in the initial loading state. Call Start to begin.
func NewAuthController(opts AuthControllerOptions) *AuthController {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.LookupTimeout
	if timeout <= 0 {
		timeout = defaultRoleLookupTimeout
	}
	interval := opts.ResubscribeInterval
	if interval <= 0 {
		interval = defaultResubscribeInterval
	}
	alertInterval := opts.AlertInterval
	if alertInterval <= 0 {
		alertInterval = defaultAlertInterval
	}

	return &AuthController{
		provider:      opts.Provider,
		roles:         opts.Roles,
		logger:        logger,
		metrics:       opts.Metrics,
		lookupTimeout: timeout,
		resubscribe:   rate.NewLimiter(rate.Every(interval), 1),
		alerts:        opts.Alerts,
		alertLimit:    rate.NewLimiter(rate.Every(alertInterval), 1),
		loop:          newEventLoop(logger),
		state:         domainauth.InitialState(),
		loaded:        make(chan struct{}),
		observers:     make(map[uint64]func(domainauth.State)),
		ctx:           context.Background(),
	}
}

// Start subscribes to the provider's session stream and then queries for an existing session.
// Failures degrade the state instead of being returned; only misuse is reported.
func (c *AuthController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errControllerClosed
	}
	if c.started {
		c.mu.Unlock()
		return errControllerStarted
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	subGen := c.subGen
	c.mu.Unlock()

	go c.loop.run(c.ctx)
	c.initialize(subGen)
	return nil
}

// initialize runs the subscribe-then-query protocol for one subscription generation.
func (c *AuthController) initialize(subGen uint64) {
	sub, err := c.provider.Subscribe(func(event domainauth.Event, sess *domainauth.Session) {
		c.enqueueSession(subGen, event, sess)
	})
	if err != nil {
		c.logger.WarnContext(c.context(), "subscribe to session stream failed", "error", err)
		metrics.EmitSubscriptionLost(c.metrics, err)
		c.raiseAlert(alertSessionStream, "subscribe to session stream failed", err)
		go c.resubscribeLater(subGen)
	} else if !c.adoptSubscription(subGen, sub) {
		sub.Unsubscribe()
		return
	}

	c.queryCurrentSession(subGen)
}

func (c *AuthController) adoptSubscription(subGen uint64, sub ports.Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.subGen != subGen {
		return false
	}
	c.sub = sub
	return true
}

// enqueueSession is the provider callback. It must stay non-blocking and must not touch the provider.
func (c *AuthController) enqueueSession(subGen uint64, event domainauth.Event, sess *domainauth.Session) {
	sess = cloneSession(sess)
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	c.loop.post(func() {
		if event == domainauth.EventSubscriptionLost {
			c.handleSubscriptionLost(subGen)
			return
		}
		applied := c.applySession(subGen, epoch, sess)
		metrics.EmitSessionEvent(c.metrics, string(event), applied)
	})
}

func (c *AuthController) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *AuthController) queryCurrentSession(subGen uint64) {
	c.mu.Lock()
	epoch := c.epoch
	ctx := c.ctx
	c.mu.Unlock()

	go func() {
		sess, err := c.provider.CurrentSession(ctx)
		sess = cloneSession(sess)
		c.loop.post(func() {
			if err != nil {
				c.logger.WarnContext(ctx, "query current session failed", "error", err)
				// Nothing is known about an existing session; treat as signed out.
				sess = nil
			}
			c.applySession(subGen, epoch, sess)
		})
	}()
}

// applySession applies one session observation. It reports false when the observation was superseded.
func (c *AuthController) applySession(subGen, epoch uint64, sess *domainauth.Session) bool {
	c.mu.Lock()
	if c.closed || subGen != c.subGen || epoch != c.epoch {
		c.mu.Unlock()
		return false
	}

	st := &c.state
	prevID := st.UserID()
	lookup := false
	var userID string
	var gen uint64

	if sess == nil {
		if prevID != "" {
			st.Generation++
		}
		st.User = nil
		st.Session = nil
		st.IsAuthenticated = false
		st.Role = ""
		st.Resolving = false
		c.setLoadedLocked()
	} else {
		userID = sess.User.ID
		if userID != prevID {
			st.Generation++
			st.Role = ""
			st.Resolving = false
		}
		u := sess.User
		st.User = &u
		st.Session = sess
		st.IsAuthenticated = true
		if st.Role == "" && !st.Resolving {
			st.Resolving = true
			lookup = true
		}
		gen = st.Generation
	}
	snap := c.state.Clone()
	c.mu.Unlock()

	c.notify(snap)
	if lookup {
		// Deferred to a later loop turn than the event that triggered it.
		c.loop.post(func() { c.startRoleLookup(gen, userID) })
	}
	return true
}

func (c *AuthController) startRoleLookup(gen uint64, userID string) {
	ctx := c.context()
	go func() {
		lookupCtx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
		defer cancel()

		started := time.Now()
		role, defaulted, err := c.resolveRole(lookupCtx, userID)
		elapsed := time.Since(started)

		res := roleResult{gen: gen, userID: userID, role: role, defaulted: defaulted, err: err, elapsed: elapsed}
		c.loop.post(func() { c.commitRole(res) })
	}()
}

type roleResult struct {
	gen       uint64
	userID    string
	role      domainauth.Role
	defaulted bool
	err       error
	elapsed   time.Duration
}

// resolveRole looks up userID's role. A missing assignment resolves to jobseeker.
func (c *AuthController) resolveRole(ctx context.Context, userID string) (domainauth.Role, bool, error) {
	if c.roles == nil {
		return domainauth.RoleJobseeker, true, nil
	}
	role, err := c.roles.LookupRole(ctx, userID)
	if errors.Is(err, ports.ErrRoleNotFound) {
		return domainauth.RoleJobseeker, true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup role for %s: %w", userID, err)
	}
	if role == "" {
		return domainauth.RoleJobseeker, true, nil
	}
	return role, false, nil
}

func (c *AuthController) commitRole(res roleResult) {
	c.mu.Lock()
	if c.closed || c.state.Generation != res.gen || c.state.UserID() != res.userID {
		c.mu.Unlock()
		c.logger.Debug("discarding stale role lookup", "user_id", res.userID)
		metrics.EmitRoleLookup(c.metrics, metrics.RoleLookupMetric{Result: metrics.ResultStale, Duration: res.elapsed})
		return
	}

	c.state.Resolving = false
	if res.err != nil {
		c.state.Role = ""
	} else {
		c.state.Role = res.role
	}
	c.setLoadedLocked()
	snap := c.state.Clone()
	c.mu.Unlock()

	result := metrics.ResultSuccess
	switch {
	case res.err != nil:
		result = metrics.ResultError
		c.logger.ErrorContext(c.context(), "role lookup failed", "user_id", res.userID, "error", res.err)
		c.raiseAlert(alertRoleStore, "role lookup failed", res.err)
	case res.defaulted:
		result = metrics.ResultDefault
	}
	metrics.EmitRoleLookup(c.metrics, metrics.RoleLookupMetric{
		Result:   result,
		Role:     string(res.role),
		Duration: res.elapsed,
		Err:      res.err,
	})

	c.notify(snap)
}

func (c *AuthController) handleSubscriptionLost(subGen uint64) {
	c.mu.Lock()
	if c.closed || subGen != c.subGen {
		c.mu.Unlock()
		return
	}
	old := c.sub
	c.sub = nil
	c.subGen++
	next := c.subGen
	c.resetLocked(domainauth.InitialState())
	snap := c.state.Clone()
	c.mu.Unlock()

	c.logger.WarnContext(c.context(), "session stream lost; re-initializing auth state")
	metrics.EmitSubscriptionLost(c.metrics, nil)
	c.raiseAlert(alertSessionStream, "session stream lost", nil)
	c.notify(snap)

	if old != nil {
		old.Unsubscribe()
	}
	go c.resubscribeLater(next)
}

func (c *AuthController) resubscribeLater(subGen uint64) {
	if err := c.resubscribe.Wait(c.context()); err != nil {
		return
	}
	c.mu.Lock()
	if c.closed || subGen != c.subGen || c.sub != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.initialize(subGen)
}

// raiseAlert sends a connectivity alert in the background, at most once per AlertInterval.
func (c *AuthController) raiseAlert(component, summary string, err error) {
	if c.alerts == nil || !c.alertLimit.Allow() {
		return
	}
	alert := notify.ConnectivityAlert{
		Component:  component,
		Summary:    summary,
		Severity:   notify.SeverityWarning,
		OccurredAt: time.Now(),
	}
	if err != nil {
		alert.Error = err.Error()
		alert.ErrorClass = obserrors.Classify(err)
	}
	ctx := context.WithoutCancel(c.context())
	go func() {
		ctx, cancel := context.WithTimeout(ctx, alertSendTimeout)
		defer cancel()
		if sendErr := c.alerts.SendConnectivityAlert(ctx, alert); sendErr != nil {
			c.logger.WarnContext(ctx, "send connectivity alert failed", "component", component, "error", sendErr)
		}
	}()
}

// SignOut asks the provider to end the session, then resets local state whatever the outcome.
// The provider error is returned for logging; local state is signed out in both cases.
func (c *AuthController) SignOut(ctx context.Context) error {
	err := c.provider.SignOut(ctx)
	metrics.EmitSignOut(c.metrics, err)
	if err != nil {
		c.logger.WarnContext(ctx, "provider sign-out failed; clearing local session anyway", "error", err)
		err = fmt.Errorf("sign out: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return err
	}
	c.resetLocked(domainauth.SignedOutState())
	snap := c.state.Clone()
	c.mu.Unlock()

	c.loop.post(func() { c.notify(snap) })
	return err
}

// Close releases the session subscription and discards the state.
func (c *AuthController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.resetLocked(domainauth.SignedOutState())
	c.observers = map[uint64]func(domainauth.State){}
	cancel := c.cancel
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}

// resetLocked replaces the state, advancing the generation and epoch so queued work goes stale.
func (c *AuthController) resetLocked(next domainauth.State) {
	wasLoading := c.state.Loading
	next.Generation = c.state.Generation + 1
	c.state = next
	c.epoch++
	switch {
	case wasLoading && !next.Loading:
		close(c.loaded)
	case !wasLoading && next.Loading:
		c.loaded = make(chan struct{})
	}
}

func (c *AuthController) setLoadedLocked() {
	if !c.state.Loading {
		return
	}
	c.state.Loading = false
	close(c.loaded)
}

// Snapshot returns a copy of the current state.
func (c *AuthController) Snapshot() domainauth.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// WaitLoaded blocks until the first resolution has completed or ctx is done.
func (c *AuthController) WaitLoaded(ctx context.Context) (domainauth.State, error) {
	c.mu.Lock()
	if !c.state.Loading {
		snap := c.state.Clone()
		c.mu.Unlock()
		return snap, nil
	}
	ch := c.loaded
	c.mu.Unlock()

	select {
	case <-ch:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// DashboardPath returns the dashboard for the current role.
func (c *AuthController) DashboardPath() string {
	return domainauth.DashboardPath(c.Snapshot().Role)
}

// Watch registers fn to be called with the current state and after every change.
// fn runs on the controller's event loop and must not block.
func (c *AuthController) Watch(fn func(domainauth.State)) (stop func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	c.loop.post(func() {
		c.mu.Lock()
		_, ok := c.observers[id]
		snap := c.state.Clone()
		c.mu.Unlock()
		if ok {
			fn(snap)
		}
	})

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// RequireAuth redirects through nav whenever the state shows an unauthenticated visitor
// or a user whose role differs from requiredRole. An empty requiredRole accepts any role.
func (c *AuthController) RequireAuth(nav ports.Navigator, requiredRole domainauth.Role) (stop func()) {
	return c.Watch(func(s domainauth.State) {
		if d := domainauth.RequireAuth(s, requiredRole); d.Redirect != "" {
			nav.Redirect(d.Redirect)
		}
	})
}

// RedirectIfAuthenticated sends signed-in users with a resolved role to their dashboard.
func (c *AuthController) RedirectIfAuthenticated(nav ports.Navigator) (stop func()) {
	return c.Watch(func(s domainauth.State) {
		if d := domainauth.RedirectIfAuthenticated(s); d.Redirect != "" {
			nav.Redirect(d.Redirect)
		}
	})
}

func (c *AuthController) notify(snap domainauth.State) {
	c.mu.Lock()
	if len(c.observers) == 0 {
		c.mu.Unlock()
		return
	}
	ids := make([]uint64, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		c.mu.Lock()
		fn, ok := c.observers[id]
		c.mu.Unlock()
		if ok {
			fn(snap.Clone())
		}
	}
}

func cloneSession(sess *domainauth.Session) *domainauth.Session {
	if sess == nil {
		return nil
	}
	st := domainauth.State{Session: sess}
	return st.Clone().Session
}
