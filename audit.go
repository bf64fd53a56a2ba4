package authsync

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/authsync/internal/audit"
)

// AuditEvent is one record of a reconciler decision.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// Audit event types.
const (
	AuditInitialize            = "initialize"
	AuditProfileRetryExhausted = "profile_retry_exhausted"
	AuditSessionEvent          = "session_event"
	AuditSignOut               = "sign_out"
	AuditMount                 = "mount"
	AuditUnmount               = "unmount"
)

func (r *Reconciler) emitAudit(ctx context.Context, event AuditEvent) {
	if r.audit == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	r.audit.Emit(ctx, event)
}
