package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

// ExpvarMetricsRecorder publishes per-operation latency totals in
// milliseconds and success/error counters under /debug/vars.
type ExpvarMetricsRecorder struct {
	name  string
	clock Clock

	mu    sync.Mutex
	stats map[string]*operationStats
}

type operationStats struct {
	totalMS   float64
	successes int64
	failures  int64
}

// ExpvarOperation is the exported view of one operation's counters.
type ExpvarOperation struct {
	DurationMSTotal float64 `json:"duration_ms_total"`
	Success         int64   `json:"success"`
	Error           int64   `json:"error"`
}

// ExpvarMetricsSnapshot is a point-in-time copy of the recorder.
type ExpvarMetricsSnapshot struct {
	Operations map[string]ExpvarOperation `json:"operations"`
	RecordedAt time.Time                  `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name
// gets a generated unique one since expvar names cannot be reused.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("kittycore_service_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{
		name:  name,
		clock: ClockFunc(func() time.Time { return time.Now().UTC() }),
		stats: make(map[string]*operationStats),
	}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current counters.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make(map[string]ExpvarOperation, len(r.stats))
	for op, st := range r.stats {
		ops[op] = ExpvarOperation{DurationMSTotal: st.totalMS, Success: st.successes, Error: st.failures}
	}
	return ExpvarMetricsSnapshot{Operations: ops, RecordedAt: r.clock.Now()}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stats[operation]
	if !ok {
		st = &operationStats{}
		r.stats[operation] = st
	}
	st.totalMS += float64(duration) / float64(time.Millisecond)
	if success {
		st.successes++
	} else {
		st.failures++
	}
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation  string            `json:"operation"`
	Status     string            `json:"status"`
	DurationMS float64           `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
}

// JSONTraceTracer writes one JSON line per finished span and keeps every span
// for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
	attrs   map[string]string
}

// NewJSONTracer returns a tracer writing to w. A nil writer only retains
// spans. attrs are stamped on every span.
func NewJSONTracer(w io.Writer, attrs map[string]string) *JSONTraceTracer {
	t := &JSONTraceTracer{attrs: maps.Clone(attrs)}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of the recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
	ended     atomic.Bool
}

func (s *jsonTraceSpan) End(err error) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Attributes: s.tracer.attrs,
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
}
