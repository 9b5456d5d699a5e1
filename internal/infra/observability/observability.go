// Package observability records settlement spans and Prometheus metrics.
//
// Spans are kept in an in-memory ring buffer and served on the admin API;
// each engine operation (submit, review, dispute, sweep, purge) opens one.
// Trace ids come from the HTTP request id when there is one.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Operation Spans
// ═══════════════════════════════════════════════════════════════════════════

// Span is one timed settlement operation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer keeps the most recent spans for inspection.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSpans int  `toml:"max_spans"` // ring buffer size (default 2_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 2_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span. A nil tracer is valid and records nothing.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if t == nil || !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   TraceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		OperationErrors.WithLabelValues(span.Operation).Inc()
	}
	OperationDuration.WithLabelValues(span.Operation).Observe(span.Duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: drop the oldest when full
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans, oldest first.
func (t *Tracer) Spans(limit int) []Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const traceIDKey contextKey = "lynks-trace-id"

// WithTraceID returns a context carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext returns the carried trace id or a fresh one.
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

// ═══════════════════════════════════════════════════════════════════════════
// Settlement Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Operations ─────────────────────────────────────────────────────────────

// OperationDuration tracks engine operation latency.
var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "lynks",
	Subsystem: "engine",
	Name:      "operation_duration_seconds",
	Help:      "Settlement operation latency by operation.",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
}, []string{"operation"})

// OperationErrors tracks failed engine operations.
var OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynks",
	Subsystem: "engine",
	Name:      "operation_errors_total",
	Help:      "Settlement operations that returned an error.",
}, []string{"operation"})

// ─── Submissions ────────────────────────────────────────────────────────────

// SubmissionTransitions counts applied status changes.
var SubmissionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynks",
	Subsystem: "submissions",
	Name:      "transitions_total",
	Help:      "Applied submission status transitions.",
}, []string{"from", "to"})

// SubmissionsCreated counts accepted submissions.
var SubmissionsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lynks",
	Subsystem: "submissions",
	Name:      "created_total",
	Help:      "Submissions accepted.",
})

// ─── Ledger ─────────────────────────────────────────────────────────────────

// CreditsMoved counts credits moved by transaction type.
var CreditsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynks",
	Subsystem: "ledger",
	Name:      "credits_total",
	Help:      "Credits transferred, by transaction type.",
}, []string{"type"})

// Payouts counts reward payouts by reason.
var Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynks",
	Subsystem: "ledger",
	Name:      "payouts_total",
	Help:      "Reward payouts, by reason.",
}, []string{"reason"})

// ─── Sweeper ────────────────────────────────────────────────────────────────

// SweepRuns counts sweep passes.
var SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lynks",
	Subsystem: "sweeper",
	Name:      "runs_total",
	Help:      "Auto-approval sweep passes.",
})

// SweepItems counts sweep outcomes per item.
var SweepItems = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynks",
	Subsystem: "sweeper",
	Name:      "items_total",
	Help:      "Stale submissions handled by the sweeper, by outcome.",
}, []string{"outcome"})

// ─── Purge Outbox ───────────────────────────────────────────────────────────

// PurgeJobs counts purge attempts by outcome.
var PurgeJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynks",
	Subsystem: "purge",
	Name:      "jobs_total",
	Help:      "Proof purge attempts, by outcome (done, retry, dead).",
}, []string{"outcome"})

// PurgeQueueDepth tracks queued purge jobs.
var PurgeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lynks",
	Subsystem: "purge",
	Name:      "queue_depth",
	Help:      "Proof purge jobs waiting to run.",
})

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationsDropped counts events dropped for slow subscribers.
var NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lynks",
	Subsystem: "notify",
	Name:      "dropped_total",
	Help:      "Events dropped because a subscriber buffer was full.",
})

// Subscribers tracks connected event-stream subscribers.
var Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lynks",
	Subsystem: "notify",
	Name:      "subscribers",
	Help:      "Connected event stream subscribers.",
})
