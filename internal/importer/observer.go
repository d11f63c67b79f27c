package importer

import "context"

// Write operations reported to an Observer.
const (
	OperationAdd    = "add"
	OperationUpdate = "update"
)

// Observer receives merge engine activity for metrics.
type Observer interface {
	LookupQuery(entity string, disjuncts int)
	RowsWritten(entity, operation string, n int)
}

// TraceSpan ends a traced stage.
type TraceSpan interface {
	End(err error)
}

// Tracer opens a span around each import stage.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopObserver struct{}

func (noopObserver) LookupQuery(string, int)          {}
func (noopObserver) RowsWritten(string, string, int) {}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}
