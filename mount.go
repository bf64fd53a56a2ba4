package authsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/MrEthical07/authsync/session"
)

// Mount is one view tree's attachment to the Reconciler: a change-event
// subscription plus the initial reconciliation it started. Writes made on
// behalf of a Mount stop the moment it is unmounted.
type Mount struct {
	id  string
	r   *Reconciler
	ctx context.Context

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	// sub and alive are guarded by r.mu.
	sub   session.Subscription
	alive bool
}

// Mount subscribes once to session change events and starts Initialize in
// the background. ctx bounds the subscription handshake; the mount itself
// lives until Unmount or Close.
func (r *Reconciler) Mount(ctx context.Context) (*Mount, error) {
	mctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m := &Mount{
		id:     uuid.NewString(),
		r:      r,
		ctx:    mctx,
		cancel: cancel,
		done:   make(chan struct{}),
		alive:  true,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return nil, ErrReconcilerClosed
	}
	r.mounts[m] = struct{}{}
	r.mu.Unlock()

	sub, err := r.sessions.Subscribe(ctx, func(ev session.Event) {
		r.handleEvent(m, ev)
	})
	if err != nil {
		r.mu.Lock()
		m.alive = false
		delete(r.mounts, m)
		r.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: subscribe: %v", ErrTransport, err)
	}

	r.mu.Lock()
	if !m.alive {
		// Close ran while the subscription was being established.
		r.mu.Unlock()
		_ = sub.Unsubscribe()
		return nil, ErrReconcilerClosed
	}
	m.sub = sub
	r.mu.Unlock()

	r.metrics.Inc(MetricMount)
	r.logger.Debug("mounted", "mount", m.id)
	r.emitAudit(ctx, AuditEvent{EventType: AuditMount, MountID: m.id, Success: true})

	go func() {
		defer close(m.done)
		r.initialize(mctx, m)
	}()
	return m, nil
}

// ID identifies the mount in logs and audit events. A nil Mount has ID "".
func (m *Mount) ID() string {
	if m == nil {
		return ""
	}
	return m.id
}

// Done is closed when the initial reconciliation started by Mount returns,
// whether it completed or was abandoned by Unmount.
func (m *Mount) Done() <-chan struct{} {
	return m.done
}

// Unmount releases the subscription and stops every write made on behalf
// of m. It is idempotent and safe to call from any goroutine, including
// from inside a change-event handler. Only the first call can return an
// error.
func (m *Mount) Unmount() error {
	var err error
	m.once.Do(func() {
		r := m.r
		r.mu.Lock()
		m.alive = false
		delete(r.mounts, m)
		sub := m.sub
		r.mu.Unlock()

		m.cancel()
		if sub != nil {
			err = sub.Unsubscribe()
		}
		r.metrics.Inc(MetricUnmount)
		r.logger.Debug("unmounted", "mount", m.id)
		r.emitAudit(context.Background(), AuditEvent{EventType: AuditUnmount, MountID: m.id, Success: err == nil})
	})
	return err
}
