package authsync

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authsync/internal/audit"
	"github.com/MrEthical07/authsync/internal/logging"
)

// Builder assembles a Reconciler. A Builder can be used once.
type Builder struct {
	config Config

	sessions SessionSource
	profiles ProfileStore

	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSessionSource sets the identity provider. Required.
func (b *Builder) WithSessionSource(src SessionSource) *Builder {
	b.sessions = src
	return b
}

// WithProfileStore sets the profile lookup. Required.
func (b *Builder) WithProfileStore(store ProfileStore) *Builder {
	b.profiles = store
	return b
}

// WithLogger sets the logger. Nil discards.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counters. Disabling them also disables the
// latency histogram.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	if !enabled {
		b.config.Metrics.EnableLatencyHistograms = false
	}
	return b
}

// WithLatencyHistograms toggles the Initialize latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithRetry overrides the profile retry policy.
func (b *Builder) WithRetry(maxAttempts int, delay time.Duration) *Builder {
	b.config.Retry = RetryConfig{MaxAttempts: maxAttempts, Delay: delay}
	return b
}

// Build validates the configuration and returns the Reconciler. No I/O
// happens until Initialize or Mount.
func (b *Builder) Build() (*Reconciler, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.sessions == nil {
		return nil, ErrMissingSessionSource
	}
	if b.profiles == nil {
		return nil, ErrMissingProfileStore
	}

	logger := b.logger
	if logger == nil {
		logger = logging.Discard()
	}

	r := newReconciler(cfg, b.sessions, b.profiles, logger.With("component", "reconciler"))
	r.metrics = NewMetrics(cfg.Metrics)
	r.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return r, nil
}
