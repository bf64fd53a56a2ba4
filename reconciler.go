package authsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/authsync/internal/audit"
	"github.com/MrEthical07/authsync/internal/retry"
	"github.com/MrEthical07/authsync/profile"
	"github.com/MrEthical07/authsync/session"
)

var errStale = errors.New("user changed during lookup")

// Reconciler owns the process-wide authentication state and keeps it in
// agreement with a SessionSource and a ProfileStore.
//
// All mutations go through commit, which holds mu only for the in-memory
// update; no lock is held across I/O. The user generation gen advances every
// time the signed-in user ID changes, and a lookup result is written only if
// the generation it started under is still current.
type Reconciler struct {
	cfg      Config
	sessions SessionSource
	profiles ProfileStore
	logger   *slog.Logger
	metrics  *Metrics
	audit    *internalaudit.Dispatcher
	now      func() time.Time

	// onRetryWait, when set, sees every wait between profile attempts.
	onRetryWait retry.WaitFunc

	mu          sync.Mutex
	state       State
	gen         uint64
	inflight    int
	ready       chan struct{}
	readyClosed bool
	watchers    map[uint64]func(State)
	watchSeq    uint64
	mounts      map[*Mount]struct{}
	closed      bool

	// Watchers are fed in commit order: each commit takes a ticket under mu
	// and delivers once every earlier ticket has been delivered.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	ticket     uint64
	delivered  uint64
}

func newReconciler(cfg Config, sessions SessionSource, profiles ProfileStore, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		cfg:      cfg,
		sessions: sessions,
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
		ready:    make(chan struct{}),
		watchers: make(map[uint64]func(State)),
		mounts:   make(map[*Mount]struct{}),
	}
	r.notifyCond = sync.NewCond(&r.notifyMu)
	return r
}

// Config returns a copy of the active configuration.
func (r *Reconciler) Config() Config {
	return cloneConfig(r.cfg)
}

// Metrics returns the live counters. The guard records its decisions here.
func (r *Reconciler) Metrics() *Metrics {
	return r.metrics
}

// MetricsSnapshot copies the current counters.
func (r *Reconciler) MetricsSnapshot() MetricsSnapshot {
	return r.metrics.Snapshot()
}

// AuditDropped reports audit events lost to a full buffer.
func (r *Reconciler) AuditDropped() uint64 {
	return r.audit.Dropped()
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// commit applies fn to the state under the lock and publishes the result to
// watchers. A write attributed to an unmounted m is dropped and commit
// returns false. fn may read and advance r.gen and r.inflight.
func (r *Reconciler) commit(m *Mount, fn func(s *State)) bool {
	r.mu.Lock()
	if m != nil && !m.alive {
		r.mu.Unlock()
		return false
	}

	fn(&r.state)

	s := &r.state
	if s.User == nil || (s.Profile != nil && s.Profile.ID != s.User.UserID) {
		s.Profile = nil
	}
	s.Loading = r.inflight > 0
	if s.Initialized && !r.readyClosed {
		r.readyClosed = true
		close(r.ready)
	}

	snap := s.clone()
	ws := r.watchersLocked()
	r.ticket++
	ticket := r.ticket
	r.mu.Unlock()

	r.publish(ticket, snap, ws)
	return true
}

// watchersLocked lists watchers in registration order. Caller holds mu.
func (r *Reconciler) watchersLocked() []func(State) {
	if len(r.watchers) == 0 {
		return nil
	}
	ws := make([]func(State), 0, len(r.watchers))
	for id := uint64(1); id <= r.watchSeq; id++ {
		if w, ok := r.watchers[id]; ok {
			ws = append(ws, w)
		}
	}
	return ws
}

// publish hands snap to ws after every earlier ticket has been published.
func (r *Reconciler) publish(ticket uint64, snap State, ws []func(State)) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	for r.delivered+1 != ticket {
		r.notifyCond.Wait()
	}
	for _, w := range ws {
		w(snap.clone())
	}
	r.delivered = ticket
	r.notifyCond.Broadcast()
}

// setUser replaces the user and advances the generation when the identity
// changes. Caller holds mu.
func (r *Reconciler) setUser(s *State, u *session.Session) {
	if s.UserID() != userIDOf(u) || (s.User == nil) != (u == nil) {
		r.gen++
	}
	s.User = u.Clone()
}

// signOutLocked clears the user and always advances the generation, so a
// pass whose session query is in flight cannot restore a signed-out session
// even when no user had been committed yet. Caller holds mu.
func (r *Reconciler) signOutLocked(s *State) {
	r.gen++
	s.User = nil
}

func userIDOf(u *session.Session) string {
	if u == nil {
		return ""
	}
	return u.UserID
}

// Watch registers fn to receive every committed state, starting with the
// current one, in commit order. fn must not call back into methods that
// mutate the Reconciler on the same goroutine. The returned func cancels the
// registration.
func (r *Reconciler) Watch(fn func(State)) (cancel func()) {
	r.mu.Lock()
	r.watchSeq++
	id := r.watchSeq
	r.watchers[id] = fn
	snap := r.state.clone()
	r.ticket++
	ticket := r.ticket
	r.mu.Unlock()
	r.publish(ticket, snap, []func(State){fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers, id)
			r.mu.Unlock()
		})
	}
}

// WaitInitialized blocks until the first reconciliation has completed or ctx
// ends.
func (r *Reconciler) WaitInitialized(ctx context.Context) (State, error) {
	select {
	case <-r.ready:
		return r.Snapshot(), nil
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

/*
====================================
INITIALIZE
====================================
*/

// Initialize runs one full reconciliation: query the session, then load the
// profile with a bounded fixed-delay retry. It always leaves the state
// initialized and not loading, and never returns a backend error; failures
// show up as an absent user or profile.
func (r *Reconciler) Initialize(ctx context.Context) State {
	return r.initialize(ctx, nil)
}

// CheckAuth is Initialize under the name views use for a manual recheck.
func (r *Reconciler) CheckAuth(ctx context.Context) State {
	return r.initialize(ctx, nil)
}

func (r *Reconciler) retryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: r.cfg.Retry.MaxAttempts, Delay: r.cfg.Retry.Delay}
}

func (r *Reconciler) initialize(ctx context.Context, m *Mount) State {
	start := r.now()
	var gen uint64
	if !r.commit(m, func(*State) {
		r.inflight++
		gen = r.gen
	}) {
		return r.Snapshot()
	}
	r.metrics.Inc(MetricInitialize)

	event := AuditEvent{EventType: AuditInitialize, MountID: m.ID()}
	outcome := "no_session"
	attempts := 0

	// finish writes the pass's last update and releases its loading claim.
	// An unmounted pass only releases the claim.
	finish := func(fn func(s *State)) {
		if !r.commit(m, func(s *State) {
			fn(s)
			r.inflight--
			s.Initialized = true
		}) {
			r.commit(nil, func(*State) { r.inflight-- })
			outcome = "abandoned"
		}
		r.metrics.Observe(MetricInitializeLatency, r.now().Sub(start))
		event.Success = outcome == "profile" || outcome == "no_session"
		event.Metadata = map[string]string{"outcome": outcome, "attempts": strconv.Itoa(attempts)}
		r.emitAudit(ctx, event)
		r.logger.Debug("initialize finished", "outcome", outcome, "attempts", attempts, "mount", m.ID())
	}

	sess, err := r.sessions.CurrentSession(ctx)
	if err != nil {
		r.metrics.Inc(MetricSessionQueryFailure)
		r.logger.Warn("session query failed", "error", err)
		event.Error = err.Error()
		outcome = "session_error"
		sess = nil
	}
	if sess == nil {
		if err == nil {
			r.metrics.Inc(MetricInitializeNoSession)
		}
		finish(func(s *State) {
			if r.gen != gen {
				return
			}
			r.setUser(s, nil)
		})
		return r.Snapshot()
	}

	event.UserID = sess.UserID
	event.SessionID = sess.ID
	stale := false
	if !r.commit(m, func(s *State) {
		if r.gen != gen {
			stale = true
			return
		}
		r.setUser(s, sess)
		gen = r.gen
	}) {
		finish(func(*State) {})
		return r.Snapshot()
	}
	if stale {
		r.metrics.Inc(MetricStaleWriteDiscarded)
		outcome = "stale"
		finish(func(*State) {})
		return r.Snapshot()
	}

	uid := sess.UserID
	p, attempts, err := retry.Do(ctx, r.retryPolicy(), func(attempt int) (*profile.Profile, error) {
		cached, current := r.profileFor(m, gen, uid)
		if !current {
			return nil, retry.Stop(errStale)
		}
		if attempt > 1 && cached != nil {
			return cached, nil
		}
		return r.lookupProfile(ctx, uid)
	}, r.observeRetryWait)

	switch {
	case err == nil:
		outcome = "profile"
		finish(func(s *State) {
			if r.gen != gen {
				outcome = "stale"
				return
			}
			s.Profile = p
		})
	case errors.Is(err, errStale), ctx.Err() != nil:
		r.metrics.Inc(MetricStaleWriteDiscarded)
		outcome = "stale"
		finish(func(*State) {})
	default:
		r.metrics.Inc(MetricProfileRetryExhausted)
		r.logger.Warn("profile lookup exhausted",
			"user_id", uid,
			"attempts", attempts,
			"error", err,
		)
		outcome = "profile_missing"
		event.Error = err.Error()
		finish(func(s *State) {
			if r.gen != gen {
				outcome = "stale"
				return
			}
			s.Profile = nil
		})
		if outcome == "profile_missing" {
			r.emitAudit(ctx, AuditEvent{
				EventType: AuditProfileRetryExhausted,
				UserID:    uid,
				SessionID: sess.ID,
				MountID:   m.ID(),
				Error:     err.Error(),
				Metadata:  map[string]string{"attempts": strconv.Itoa(attempts)},
			})
		}
	}
	return r.Snapshot()
}

// profileFor reports whether gen is still current for m, and the cached
// profile when it belongs to uid.
func (r *Reconciler) profileFor(m *Mount, gen uint64, uid string) (*profile.Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if (m != nil && !m.alive) || r.gen != gen {
		return nil, false
	}
	if r.state.Profile != nil && r.state.Profile.ID == uid {
		return r.state.Profile.Clone(), true
	}
	return nil, true
}

func (r *Reconciler) observeRetryWait(attempt int, delay time.Duration, err error) {
	r.metrics.Inc(MetricProfileRetry)
	r.logger.Debug("profile lookup retry", "attempt", attempt, "delay", delay, "error", err)
	if r.onRetryWait != nil {
		r.onRetryWait(attempt, delay, err)
	}
}

// lookupProfile performs one Get and classifies the result as a hit, a
// miss (ErrProfileNotProvisioned) or a transport failure (ErrTransport).
func (r *Reconciler) lookupProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	p, err := r.profiles.Get(ctx, userID)
	switch {
	case errors.Is(err, profile.ErrNotFound), err == nil && p == nil:
		r.metrics.Inc(MetricProfileMiss)
		return nil, ErrProfileNotProvisioned
	case err != nil:
		r.metrics.Inc(MetricProfileLookupFailure)
		return nil, fmt.Errorf("%w: profile %s: %v", ErrTransport, userID, err)
	case p.ID != userID:
		r.metrics.Inc(MetricProfileMiss)
		r.logger.Warn("profile store returned another user's row", "user_id", userID, "row_id", p.ID)
		return nil, ErrProfileNotProvisioned
	}
	r.metrics.Inc(MetricProfileHit)
	return p.Clone(), nil
}

/*
====================================
CHANGE EVENTS
====================================
*/

func (r *Reconciler) handleEvent(m *Mount, ev session.Event) {
	ctx := context.Background()
	if m != nil {
		ctx = m.ctx
	}

	switch ev.Kind {
	case session.EventSignedOut:
		r.metrics.Inc(MetricEventSignedOut)
		var uid string
		if !r.commit(m, func(s *State) {
			uid = s.UserID()
			r.signOutLocked(s)
		}) {
			return
		}
		r.logger.Info("signed out by session source", "user_id", uid)
		r.emitAudit(ctx, AuditEvent{
			EventType: AuditSessionEvent,
			UserID:    uid,
			MountID:   m.ID(),
			Success:   true,
			Metadata:  map[string]string{"kind": ev.Kind.String()},
		})

	case session.EventSignedIn, session.EventTokenRefreshed:
		if ev.Kind == session.EventSignedIn {
			r.metrics.Inc(MetricEventSignedIn)
		} else {
			r.metrics.Inc(MetricEventTokenRefreshed)
		}
		if ev.Session == nil {
			r.logger.Warn("change event without session", "kind", ev.Kind)
			return
		}

		var gen uint64
		if !r.commit(m, func(s *State) {
			r.setUser(s, ev.Session)
			gen = r.gen
		}) {
			return
		}

		uid := ev.Session.UserID
		p, err := r.lookupProfile(ctx, uid)
		if err != nil {
			r.logger.Info("profile lookup after change event failed", "user_id", uid, "kind", ev.Kind, "error", err)
		}
		stale := false
		r.commit(m, func(s *State) {
			if r.gen != gen {
				stale = true
				return
			}
			s.Profile = p
		})
		if stale {
			r.metrics.Inc(MetricStaleWriteDiscarded)
		}
		event := AuditEvent{
			EventType: AuditSessionEvent,
			UserID:    uid,
			SessionID: ev.Session.ID,
			MountID:   m.ID(),
			Success:   err == nil,
			Metadata:  map[string]string{"kind": ev.Kind.String()},
		}
		if err != nil {
			event.Error = err.Error()
		}
		r.emitAudit(ctx, event)

	default:
		r.logger.Warn("unknown change event", "kind", ev.Kind)
	}
}

/*
====================================
COLLABORATOR OPERATIONS
====================================
*/

// SignOut ends the session at the SessionSource and clears local state.
// Local state is cleared even when the external call fails; that failure
// is returned wrapped in ErrSignOutFailed.
func (r *Reconciler) SignOut(ctx context.Context) error {
	r.metrics.Inc(MetricSignOut)
	extErr := r.sessions.SignOut(ctx)

	var uid string
	r.commit(nil, func(s *State) {
		uid = s.UserID()
		r.signOutLocked(s)
		s.Initialized = true
	})

	event := AuditEvent{EventType: AuditSignOut, UserID: uid, Success: extErr == nil}
	if extErr != nil {
		r.metrics.Inc(MetricSignOutFailure)
		r.logger.Warn("external sign-out failed", "user_id", uid, "error", extErr)
		event.Error = extErr.Error()
		r.emitAudit(ctx, event)
		return fmt.Errorf("%w: %v", ErrSignOutFailed, extErr)
	}
	r.emitAudit(ctx, event)
	return nil
}

// SetProfile replaces the cached profile, for collaborators that changed it
// (for example after awarding points). A nil p clears it. A profile that
// does not belong to the current user is rejected with ErrProfileMismatch.
func (r *Reconciler) SetProfile(p *profile.Profile) error {
	var err error
	r.commit(nil, func(s *State) {
		switch {
		case p == nil:
			s.Profile = nil
		case s.User == nil || p.ID != s.User.UserID:
			err = ErrProfileMismatch
		default:
			s.Profile = p.Clone()
		}
	})
	return err
}

// RefreshProfile performs one lookup for the current user. A hit replaces
// the profile, a miss clears it and a transport failure leaves it as is.
func (r *Reconciler) RefreshProfile(ctx context.Context) State {
	r.mu.Lock()
	uid := r.state.UserID()
	gen := r.gen
	r.mu.Unlock()
	if uid == "" {
		return r.Snapshot()
	}

	p, err := r.lookupProfile(ctx, uid)
	if err != nil && !errors.Is(err, ErrProfileNotProvisioned) {
		r.logger.Info("profile refresh failed", "user_id", uid, "error", err)
		return r.Snapshot()
	}
	r.commit(nil, func(s *State) {
		if r.gen != gen {
			return
		}
		s.Profile = p
	})
	return r.Snapshot()
}

// Close unmounts every live mount and flushes the audit dispatcher.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	mounts := make([]*Mount, 0, len(r.mounts))
	for m := range r.mounts {
		mounts = append(mounts, m)
	}
	r.mu.Unlock()

	var errs []error
	for _, m := range mounts {
		if err := m.Unmount(); err != nil {
			errs = append(errs, err)
		}
	}
	r.audit.Close()
	return errors.Join(errs...)
}
