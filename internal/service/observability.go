package service

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"emxloader/internal/importer"
)

var expvarSeq uint64

// ExpvarRecorder publishes import totals via expvar for deployments without a
// prometheus scraper.
type ExpvarRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	imports   map[string]int64
	rows      map[string]map[string]int64
	lookups   int64
	rollbacks int64
}

// ExpvarSnapshot is a read-only view of the recorded totals.
type ExpvarSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Imports     map[string]int64            `json:"imports_total"`
	Rows        map[string]map[string]int64 `json:"rows_written_total"`
	Lookups     int64                       `json:"lookup_queries_total"`
	Rollbacks   int64                       `json:"rollbacks_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarRecorder publishes a recorder under name. An empty name gets a
// unique generated one.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("emx_import_metrics_%d", id)
	}
	rec := &ExpvarRecorder{
		name:      name,
		durations: make(map[string]float64),
		imports:   make(map[string]int64),
		rows:      make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarRecorder) Name() string { return r.name }

// Snapshot returns a copy of the totals.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	durations := make(map[string]float64, len(r.durations))
	for outcome, total := range r.durations {
		durations[outcome] = total
	}
	imports := make(map[string]int64, len(r.imports))
	for outcome, n := range r.imports {
		imports[outcome] = n
	}
	rows := make(map[string]map[string]int64, len(r.rows))
	for entity, byOp := range r.rows {
		cpy := make(map[string]int64, len(byOp))
		for op, n := range byOp {
			cpy[op] = n
		}
		rows[entity] = cpy
	}
	return ExpvarSnapshot{
		DurationsMS: durations,
		Imports:     imports,
		Rows:        rows,
		Lookups:     r.lookups,
		Rollbacks:   r.rollbacks,
		RecordedAt:  time.Now().UTC(),
	}
}

// WriteFile writes the current snapshot to path as indented JSON.
func (r *ExpvarRecorder) WriteFile(path string) error {
	b, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode expvar snapshot: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("write expvar snapshot: %w", err)
	}
	return nil
}

func (r *ExpvarRecorder) LookupQuery(string, int) {
	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()
}

func (r *ExpvarRecorder) RowsWritten(entity, operation string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byOp, ok := r.rows[entity]
	if !ok {
		byOp = make(map[string]int64, len(operations))
		for _, op := range operations {
			byOp[op] = 0
		}
		r.rows[entity] = byOp
	}
	byOp[operation] += int64(n)
}

func (r *ExpvarRecorder) ObserveImport(outcome string, elapsed time.Duration) {
	r.mu.Lock()
	r.durations[outcome] += float64(elapsed) / float64(time.Millisecond)
	r.imports[outcome]++
	r.mu.Unlock()
}

func (r *ExpvarRecorder) ObserveRollback() {
	r.mu.Lock()
	r.rollbacks++
	r.mu.Unlock()
}

// JSONTraceEntry is one span written by JSONTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

var _ importer.Tracer = (*JSONTracer)(nil)

// JSONTracer writes spans as JSON lines and retains them for inspection.
type JSONTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer returns a tracer writing to w. A nil w only retains spans.
func NewJSONTracer(w io.Writer) *JSONTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTracer{enc: enc}
}

// Entries returns a copy of the finished spans.
func (t *JSONTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, importer.TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	status := "success"
	var errMsg string
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
