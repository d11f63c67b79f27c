// Package importer writes parsed EMX metadata and data into a data service.
package importer

import (
	"context"
	"time"

	"emxloader/internal/hugeset"
	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

// Writer sequences the import stages. It runs inside a transaction opened by
// the caller and does not open one itself.
type Writer struct {
	ds        domain.DataService
	perms     domain.PermissionHook
	log       *logrus.Entry
	tracer    Tracer
	observer  Observer
	spill     hugeset.Options
	newSet    func() IDSet
	reindexer *Reindexer
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger entry.
func WithLogger(log *logrus.Entry) Option {
	return func(w *Writer) {
		if log != nil {
			w.log = log
		}
	}
}

// WithTracer wraps every stage in a span.
func WithTracer(t Tracer) Option {
	return func(w *Writer) {
		if t != nil {
			w.tracer = t
		}
	}
}

// WithObserver reports merge activity.
func WithObserver(o Observer) Option {
	return func(w *Writer) {
		if o != nil {
			w.observer = o
		}
	}
}

// WithSpillOptions tunes the id sets used by the merge engine.
func WithSpillOptions(opts hugeset.Options) Option {
	return func(w *Writer) { w.spill = opts }
}

// WithIDSetFactory replaces the id set constructor of the merge engine.
func WithIDSetFactory(fn func() IDSet) Option {
	return func(w *Writer) { w.newSet = fn }
}

// NewWriter returns a writer targeting ds. perms may be nil when no
// permissions need to be granted.
func NewWriter(ds domain.DataService, perms domain.PermissionHook, opts ...Option) *Writer {
	w := &Writer{
		ds:       ds,
		perms:    perms,
		log:      logrus.NewEntry(logrus.StandardLogger()),
		tracer:   noopTracer{},
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithField("component", "import-writer")
	w.reindexer = NewReindexer(ds, w.log)
	return w
}

func (w *Writer) mergeEngine() *MergeEngine {
	m := NewMergeEngine(w.spill, w.observer, w.log)
	if w.newSet != nil {
		m.newSet = w.newSet
	}
	return m
}

// DoImport runs the stages of job in order and returns its report. Any stage
// error is returned immediately; the caller aborts its transaction and calls
// RollbackSchemaChanges.
func (w *Writer) DoImport(ctx context.Context, job *Job) (*Report, error) {
	started := time.Now()
	if job.Report == nil {
		job.Report = NewReport()
	}
	if job.Ledger == nil {
		job.Ledger = NewLedger()
	}
	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{"tags", func(ctx context.Context) error { return NewTagStager(w.ds).Stage(ctx, job.Source) }},
		{"packages", func(ctx context.Context) error { return NewPackageStager(w.ds.Meta()).Stage(ctx, job.MetaData) }},
		{"metadata", func(ctx context.Context) error {
			return NewMetaStager(w.ds.Meta(), w.log).Stage(ctx, job.MetaData, job.Report, job.Ledger)
		}},
		{"permissions", func(ctx context.Context) error { return w.grantPermissions(ctx, job.Ledger) }},
		{"tag-bindings", func(ctx context.Context) error { return NewTagBindingStager(w.ds.Tags()).Apply(ctx, job.MetaData) }},
		{"data", func(ctx context.Context) error {
			return NewDataStager(w.ds, w.mergeEngine(), w.log).Run(ctx, job.Report, job.MetaData.Entities, job.Source, job.Action)
		}},
	}
	for _, stage := range stages {
		sctx, span := w.tracer.Start(ctx, "import."+stage.name)
		err := stage.run(sctx)
		span.End(err)
		if err != nil {
			w.log.WithField("stage", stage.name).WithError(err).Error("import failed")
			return job.Report, err
		}
		w.log.WithField("stage", stage.name).Debug("stage complete")
	}
	w.log.WithFields(logrus.Fields{
		"action":   job.Action,
		"rows":     job.Report.Total(),
		"entities": len(job.Report.NewEntities()),
		"elapsed":  time.Since(started).String(),
	}).Info("import complete")
	return job.Report, nil
}

// grantPermissions gives a non-superuser rights on the entities it created.
func (w *Writer) grantPermissions(ctx context.Context, ledger *Ledger) error {
	principal, ok := domain.PrincipalFromContext(ctx)
	if ok && principal.Superuser {
		return nil
	}
	if w.perms == nil {
		return nil
	}
	if !ok {
		return domain.NewError(domain.KindPermissionFailure, "", nil, "no principal in context")
	}
	if err := w.perms.Grant(ctx, principal, ledger.AddedEntities()); err != nil {
		return domain.Classify(err, domain.KindPermissionFailure, "", "grant permissions to "+principal.Username)
	}
	return nil
}

// RollbackSchemaChanges undoes the schema changes recorded in the job's
// ledger, then rebuilds indexes for the source entities, the mutated entities
// and the reserved catalog entities. It never fails; problems are logged.
// The names passed to the reindexer are returned.
func (w *Writer) RollbackSchemaChanges(ctx context.Context, job *Job) []string {
	w.log.Info("rolling back schema changes")
	ledger := job.Ledger
	if ledger == nil {
		ledger = NewLedger()
	}
	if err := ledger.Rollback(ctx, w.ds.Meta(), w.log); err != nil {
		w.log.WithError(err).Warn("rollback incomplete")
	}

	var names []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if job.Source != nil {
		for _, name := range job.Source.EntityNames() {
			add(name)
		}
	}
	for _, name := range ledger.MutatedEntities() {
		add(name)
	}
	for _, name := range ledger.AddedEntities() {
		add(name)
	}
	for _, name := range domain.ReservedEntities {
		add(name)
	}
	if _, err := w.reindexer.Reindex(ctx, names); err != nil {
		w.log.WithError(err).Warn("reindex incomplete")
	}
	return names
}

// Reindex rebuilds the indexes of the named entities.
func (w *Writer) Reindex(ctx context.Context, names []string) ([]string, error) {
	return w.reindexer.Reindex(ctx, names)
}
