package guard

import (
	"context"
	"log/slog"
	"sync"
)

// Notice is a message shown to the visitor after a redirect.
type Notice struct {
	Message  string
	From     string
	To       string
	UserID   string
	Severity string // "error" for denials, "info" otherwise
}

// Notifier delivers notices, for example to a flash-message queue.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	if l.Logger == nil {
		return
	}
	l.Logger.InfoContext(ctx, "guard notice",
		"message", n.Message,
		"from", n.From,
		"to", n.To,
		"user_id", n.UserID,
		"severity", n.Severity,
	)
}

// Inbox keeps the most recent notices in memory; the demo server renders
// them as flash messages.
type Inbox struct {
	mu    sync.Mutex
	limit int
	items []Notice
}

// NewInbox returns an inbox holding at most limit notices.
func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 16
	}
	return &Inbox{limit: limit}
}

func (b *Inbox) Notify(_ context.Context, n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if len(b.items) > b.limit {
		b.items = b.items[len(b.items)-b.limit:]
	}
}

// Drain returns and forgets the queued notices.
func (b *Inbox) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}
