// Package service runs EMX imports against a persistent store: it opens the
// transaction, rolls schema changes back on failure and records the run.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"emxloader/internal/archive"
	"emxloader/internal/hugeset"
	"emxloader/internal/importer"
	"emxloader/internal/security"
	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

// Metrics records import outcomes in addition to merge engine activity.
type Metrics interface {
	importer.Observer
	ObserveImport(outcome string, elapsed time.Duration)
	ObserveRollback()
}

// Authorizer checks a principal's permission on an existing entity.
type Authorizer interface {
	Authorize(principal domain.Principal, entity, act string) error
}

// Service exposes imports, reindexing and catalog inspection over a store.
type Service struct {
	store    domain.PersistentStore
	perms    domain.PermissionHook
	authz    Authorizer
	archiver *archive.Archiver
	metrics  Metrics
	tracer   importer.Tracer
	spill    hugeset.Options
	log      *logrus.Entry
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger entry.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPermissions grants rights on created entities through hook.
func WithPermissions(hook domain.PermissionHook) Option {
	return func(s *Service) { s.perms = hook }
}

// WithAuthorizer requires writemeta on every existing entity an import
// declares. Superusers are not checked.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) { s.authz = a }
}

// WithArchiver writes a record of every import run.
func WithArchiver(a *archive.Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithMetrics records outcomes and merge activity.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer traces the transaction and every import stage.
func WithTracer(t importer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithSpillOptions tunes the id sets of the merge engine.
func WithSpillOptions(opts hugeset.Options) Option {
	return func(s *Service) { s.spill = opts }
}

// WithClock overrides the time source used for archive records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a service over store.
func New(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		metrics: nopMetrics{},
		log:     logrus.NewEntry(logrus.StandardLogger()),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "import-service")
	return s
}

// Request is one import as submitted at the boundary.
type Request struct {
	Source    domain.Source
	MetaData  domain.ParsedMetaData
	Action    string
	Principal domain.Principal
}

// Result is the outcome of Import. It is returned together with the error
// of a failed import.
type Result struct {
	Report     *importer.Report
	Ledger     *importer.Ledger
	Reindexed  []string
	ArchiveKey string
}

// Import validates the request, runs the writer inside a transaction and
// rolls schema changes back in a second transaction when the first fails.
func (s *Service) Import(ctx context.Context, req Request) (*Result, error) {
	action, err := domain.ParseDatabaseAction(req.Action)
	if err != nil {
		return nil, err
	}
	if req.Source == nil {
		return nil, domain.NewError(domain.KindIOFailure, "", nil, "no source")
	}
	ctx = domain.WithPrincipal(ctx, req.Principal)
	if err := s.authorize(ctx, req); err != nil {
		s.log.WithField("user", req.Principal.Username).WithError(err).Warn("import denied")
		return nil, err
	}
	job := importer.NewJob(req.Source, req.MetaData, action)
	result := &Result{Report: job.Report, Ledger: job.Ledger}
	started := s.now()
	log := s.log.WithFields(logrus.Fields{"action": action, "user": req.Principal.Username})

	err = s.withTransaction(ctx, "import.transaction", func(ds domain.DataService) error {
		_, err := s.writer(ds).DoImport(ctx, job)
		return err
	})
	outcome := archive.OutcomeCommitted
	if err != nil {
		outcome = archive.OutcomeRolledBack
		result.Reindexed = s.rollback(ctx, job)
		s.metrics.ObserveRollback()
		log.WithError(err).Warn("import rolled back")
	}
	finished := s.now()
	s.metrics.ObserveImport(outcome, finished.Sub(started))

	key, archiveErr := s.archive(ctx, req, job, result, outcome, err, started, finished)
	if archiveErr != nil {
		log.WithError(archiveErr).Warn("archive import record failed")
	}
	result.ArchiveKey = key
	return result, err
}

// authorize checks the principal against the entities the request would
// extend or write. Entities the import creates are granted afterwards.
func (s *Service) authorize(ctx context.Context, req Request) error {
	if s.authz == nil || req.Principal.Superuser {
		return nil
	}
	return s.store.View(ctx, func(ds domain.DataService) error {
		for _, e := range req.MetaData.Entities {
			if domain.IsReserved(e.Name) || e.Abstract {
				continue
			}
			if _, exists := ds.Meta().EntityMetaData(e.Name); !exists {
				continue
			}
			if err := s.authz.Authorize(req.Principal, e.Name, security.ActionWriteMeta); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTransaction runs fn in a store transaction traced as operation.
func (s *Service) withTransaction(ctx context.Context, operation string, fn func(domain.DataService) error) error {
	if s.tracer != nil {
		var span importer.TraceSpan
		ctx, span = s.tracer.Start(ctx, operation)
		err := s.store.RunInTransaction(ctx, fn)
		span.End(err)
		return err
	}
	return s.store.RunInTransaction(ctx, fn)
}

func (s *Service) writer(ds domain.DataService) *importer.Writer {
	return importer.NewWriter(ds, s.perms,
		importer.WithLogger(s.log),
		importer.WithTracer(s.tracer),
		importer.WithObserver(s.metrics),
		importer.WithSpillOptions(s.spill),
	)
}

// rollback undoes the schema changes of job. Its errors are logged only.
func (s *Service) rollback(ctx context.Context, job *importer.Job) []string {
	var names []string
	err := s.withTransaction(ctx, "import.rollback", func(ds domain.DataService) error {
		names = s.writer(ds).RollbackSchemaChanges(ctx, job)
		return nil
	})
	if err != nil {
		s.log.WithError(err).Warn("rollback transaction failed")
	}
	return names
}

func (s *Service) archive(ctx context.Context, req Request, job *importer.Job, result *Result,
	outcome string, importErr error, started, finished time.Time,
) (string, error) {
	if !s.archiver.Enabled() {
		return "", nil
	}
	report, err := json.Marshal(job.Report)
	if err != nil {
		return "", err
	}
	ledger, err := json.Marshal(job.Ledger)
	if err != nil {
		return "", err
	}
	rec := &archive.Record{
		Action:     string(job.Action),
		User:       req.Principal.Username,
		Outcome:    outcome,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Report:     report,
		Ledger:     ledger,
		Reindexed:  result.Reindexed,
	}
	if importErr != nil {
		rec.Error = importErr.Error()
		rec.ErrorKind = string(domain.KindOf(importErr))
	}
	info, err := s.archiver.Write(ctx, rec)
	if err != nil {
		return "", err
	}
	return info.Key, nil
}

// Reindex rebuilds the indexes of the named entities in one transaction.
func (s *Service) Reindex(ctx context.Context, names []string) ([]string, error) {
	var rebuilt []string
	err := s.withTransaction(ctx, "reindex", func(ds domain.DataService) error {
		var err error
		rebuilt, err = importer.NewReindexer(ds, s.log).Reindex(ctx, names)
		return err
	})
	return rebuilt, err
}

// EntitySummary is one line of Describe.
type EntitySummary struct {
	Name       string `json:"name"`
	Attributes int    `json:"attributes"`
	Rows       int64  `json:"rows"`
	Abstract   bool   `json:"abstract,omitempty"`
}

// Describe lists the registered entities with their row counts, sorted by name.
func (s *Service) Describe(ctx context.Context) ([]EntitySummary, error) {
	var out []EntitySummary
	err := s.store.View(ctx, func(ds domain.DataService) error {
		var errs []error
		for _, name := range ds.EntityNames() {
			meta, ok := ds.Meta().EntityMetaData(name)
			if !ok {
				continue
			}
			summary := EntitySummary{Name: name, Attributes: len(meta.Attributes), Abstract: meta.Abstract}
			if repo, ok := ds.Repository(name); ok {
				n, err := repo.Count(ctx)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				summary.Rows = n
			}
			out = append(out, summary)
		}
		return errors.Join(errs...)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// History lists the archived import records started on or after since.
func (s *Service) History(ctx context.Context, since time.Time) ([]archive.Record, error) {
	infos, err := s.archiver.List(ctx, since)
	if err != nil {
		return nil, err
	}
	out := make([]archive.Record, 0, len(infos))
	for _, info := range infos {
		rec, err := s.archiver.Read(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type nopMetrics struct{}

func (nopMetrics) LookupQuery(string, int)              {}
func (nopMetrics) RowsWritten(string, string, int)     {}
func (nopMetrics) ObserveImport(string, time.Duration) {}
func (nopMetrics) ObserveRollback()                    {}
