package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/internal/logging"
)

// Guard evaluates requirements against a Reconciler's live state.
type Guard struct {
	r           *authsync.Reconciler
	routes      authsync.RoutesConfig
	logger      *slog.Logger
	notifier    Notifier
	healTimeout time.Duration

	mu sync.Mutex
	// healedFor is the last user a profile refresh was triggered for.
	healedFor string
}

// Option configures a Guard.
type Option func(*Guard)

// WithNotifier sets where redirect notices go.
func WithNotifier(n Notifier) Option {
	return func(g *Guard) { g.notifier = n }
}

// WithLogger sets the guard's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithRoutes overrides the routes taken from the reconciler's config.
func WithRoutes(routes authsync.RoutesConfig) Option {
	return func(g *Guard) { g.routes = routes }
}

// WithHealTimeout bounds the one-time profile refresh.
func WithHealTimeout(d time.Duration) Option {
	return func(g *Guard) { g.healTimeout = d }
}

// New returns a Guard over r.
func New(r *authsync.Reconciler, opts ...Option) *Guard {
	g := &Guard{
		r:           r,
		routes:      r.Config().Routes,
		logger:      logging.Discard(),
		healTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "guard")
	return g
}

// Check decides what the view at location should do under req. When the
// reconciler has settled with a user but no profile, Check first refreshes
// the profile, once per user.
func (g *Guard) Check(ctx context.Context, req Requirement, location string) (Decision, authsync.State) {
	s := g.r.Snapshot()
	if g.shouldHeal(s) {
		g.r.Metrics().Inc(authsync.MetricGuardSelfHeal)
		g.logger.Info("profile missing after initialization, refreshing", "user_id", s.UserID())
		hctx, cancel := context.WithTimeout(ctx, g.healTimeout)
		s = g.r.RefreshProfile(hctx)
		cancel()
	}

	d := Evaluate(s, req, location, g.routes)
	g.record(ctx, d, s, location)
	return d, s
}

func (g *Guard) shouldHeal(s authsync.State) bool {
	if !s.Settled() || s.User == nil || s.Profile != nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.healedFor == s.User.UserID {
		return false
	}
	g.healedFor = s.User.UserID
	return true
}

func (g *Guard) record(ctx context.Context, d Decision, s authsync.State, location string) {
	m := g.r.Metrics()
	switch d.Action {
	case ActionWait:
		m.Inc(authsync.MetricGuardWait)
	case ActionRender:
		m.Inc(authsync.MetricGuardRender)
	case ActionRedirect:
		m.Inc(authsync.MetricGuardRedirect)
		g.logger.Debug("redirect", "from", location, "to", d.To, "user_id", s.UserID())
		if d.Notice != "" && g.notifier != nil {
			severity := "info"
			if d.Notice == NoticeForbidden || d.Notice == NoticeSignInRequired {
				severity = "error"
			}
			g.notifier.Notify(ctx, Notice{
				Message:  d.Notice,
				From:     location,
				To:       d.To,
				UserID:   s.UserID(),
				Severity: severity,
			})
		}
	}
}
