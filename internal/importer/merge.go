package importer

import (
	"context"
	"fmt"
	"iter"

	"emxloader/internal/hugeset"
	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
)

const (
	// lookupBatchSize caps the disjuncts of one existence lookup query.
	lookupBatchSize = 100
	// writeBatchSize caps the rows of one add or update call.
	writeBatchSize = 1000
	// maxReportedIDs is the number of offending ids named in an error.
	maxReportedIDs = 5
)

// IDSet is the set abstraction the merge engine keeps ids in.
type IDSet interface {
	Add(ctx context.Context, v any) error
	Contains(ctx context.Context, v any) (bool, error)
	All(ctx context.Context) iter.Seq2[any, error]
	Empty() bool
	Close() error
}

// MergeEngine writes a row stream into a repository under a merge policy.
type MergeEngine struct {
	newSet   func() IDSet
	observer Observer
	log      *logrus.Entry
}

// NewMergeEngine returns an engine whose id sets spill per opts.
func NewMergeEngine(opts hugeset.Options, observer Observer, log *logrus.Entry) *MergeEngine {
	if observer == nil {
		observer = noopObserver{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MergeEngine{
		newSet:   func() IDSet { return hugeset.New(opts) },
		observer: observer,
		log:      log.WithField("component", "merge"),
	}
}

// Update merges rows into repo and returns the number of rows in the stream.
// The stream is ranged over more than once and must be restartable.
func (m *MergeEngine) Update(ctx context.Context, repo domain.Repository, rows domain.RowStream, action domain.DatabaseAction) (int, error) {
	if rows == nil {
		return 0, nil
	}
	meta := repo.EntityMetaData()
	idAttr, ok := meta.IDAttributeMeta()
	if !ok {
		return 0, domain.NewError(domain.KindSchemaConflict, repo.Name(), nil, "entity %s has no id attribute", repo.Name())
	}

	incoming := m.newSet()
	existing := m.newSet()
	defer func() {
		if cerr := existing.Close(); cerr != nil {
			m.log.WithError(cerr).Warn("close existing id set")
		}
		if cerr := incoming.Close(); cerr != nil {
			m.log.WithError(cerr).Warn("close incoming id set")
		}
	}()

	count := 0
	for row, rerr := range rows {
		if rerr != nil {
			return count, domain.Classify(rerr, domain.KindIOFailure, repo.Name(), "read rows")
		}
		count++
		id, cerr := convertID(repo.Name(), idAttr, row)
		if cerr != nil {
			return count, cerr
		}
		if id == nil {
			continue
		}
		if err := incoming.Add(ctx, id); err != nil {
			return count, domain.Classify(err, domain.KindIOFailure, repo.Name(), "record incoming id")
		}
	}

	if !incoming.Empty() {
		n, err := repo.Count(ctx)
		if err != nil {
			return count, domain.Classify(err, domain.KindIOFailure, repo.Name(), "count")
		}
		if n > 0 {
			if err := m.lookupExisting(ctx, repo, idAttr, incoming, existing); err != nil {
				return count, err
			}
		}
	}

	log := m.log.WithFields(logrus.Fields{"entity": repo.Name(), "action": action})
	var err error
	switch action {
	case domain.ActionAdd:
		err = m.add(ctx, repo, rows, existing)
	case domain.ActionAddUpdateExisting:
		err = m.addUpdateExisting(ctx, repo, idAttr, rows, existing)
	case domain.ActionUpdate:
		err = m.update(ctx, repo, idAttr, rows, existing)
	default:
		log.Warn("unknown database action, nothing written")
	}
	if err != nil {
		return count, err
	}
	log.WithField("count", count).Debug("merged rows")
	return count, nil
}

// lookupExisting finds which incoming ids already exist, lookupBatchSize ids per query.
func (m *MergeEngine) lookupExisting(ctx context.Context, repo domain.Repository, idAttr domain.AttributeMetaData, incoming, existing IDSet) error {
	q := domain.NewQuery()
	batch := 0
	flush := func() error {
		m.observer.LookupQuery(repo.Name(), q.Disjuncts())
		for found, err := range repo.FindAll(ctx, q) {
			if err != nil {
				return domain.Classify(err, domain.KindIOFailure, repo.Name(), "look up existing ids")
			}
			id, err := convertID(repo.Name(), idAttr, found)
			if err != nil {
				return err
			}
			if err := existing.Add(ctx, id); err != nil {
				return domain.Classify(err, domain.KindIOFailure, repo.Name(), "record existing id")
			}
		}
		q = domain.NewQuery()
		batch = 0
		return nil
	}
	for id, err := range incoming.All(ctx) {
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, repo.Name(), "iterate incoming ids")
		}
		if batch > 0 {
			q.Or()
		}
		q.Eq(idAttr.Name, id)
		batch++
		if batch == lookupBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if batch > 0 {
		return flush()
	}
	return nil
}

func (m *MergeEngine) add(ctx context.Context, repo domain.Repository, rows domain.RowStream, existing IDSet) error {
	if !existing.Empty() {
		samples, more, err := sampleIDs(existing.All(ctx))
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, repo.Name(), "list existing ids")
		}
		return &domain.ImportError{
			Kind:    domain.KindDuplicateID,
			Entity:  repo.Name(),
			IDs:     samples,
			Message: fmt.Sprintf("Trying to add existing %s entities as new insert: %s", repo.Name(), domain.JoinSamples(samples, ",", maxReportedIDs, more)),
		}
	}
	n, err := repo.Add(ctx, rows)
	if err != nil {
		return domain.Classify(err, domain.KindIOFailure, repo.Name(), "add")
	}
	m.observer.RowsWritten(repo.Name(), OperationAdd, n)
	return nil
}

func (m *MergeEngine) addUpdateExisting(ctx context.Context, repo domain.Repository, idAttr domain.AttributeMetaData, rows domain.RowStream, existing IDSet) error {
	toInsert := make([]domain.Entity, 0, writeBatchSize)
	toUpdate := make([]domain.Entity, 0, writeBatchSize)
	flushInsert := func() error {
		if len(toInsert) == 0 {
			return nil
		}
		n, err := repo.Add(ctx, domain.Rows(toInsert))
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, repo.Name(), "add batch")
		}
		m.observer.RowsWritten(repo.Name(), OperationAdd, n)
		toInsert = make([]domain.Entity, 0, writeBatchSize)
		return nil
	}
	flushUpdate := func() error {
		if len(toUpdate) == 0 {
			return nil
		}
		n, err := repo.Update(ctx, domain.Rows(toUpdate))
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, repo.Name(), "update batch")
		}
		m.observer.RowsWritten(repo.Name(), OperationUpdate, n)
		toUpdate = make([]domain.Entity, 0, writeBatchSize)
		return nil
	}

	for row, err := range rows {
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, repo.Name(), "read rows")
		}
		id, err := convertID(repo.Name(), idAttr, row)
		if err != nil {
			return err
		}
		found, err := existing.Contains(ctx, id)
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, repo.Name(), "classify row")
		}
		if found {
			toUpdate = append(toUpdate, row)
			if len(toUpdate) == writeBatchSize {
				if err := flushUpdate(); err != nil {
					return err
				}
			}
			continue
		}
		toInsert = append(toInsert, row)
		if len(toInsert) == writeBatchSize {
			if err := flushInsert(); err != nil {
				return err
			}
		}
	}
	if err := flushUpdate(); err != nil {
		return err
	}
	return flushInsert()
}

func (m *MergeEngine) update(ctx context.Context, repo domain.Repository, idAttr domain.AttributeMetaData, rows domain.RowStream, existing IDSet) error {
	var missing []string
	more := false
	for row, err := range rows {
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, repo.Name(), "read rows")
		}
		id, err := convertID(repo.Name(), idAttr, row)
		if err != nil {
			return err
		}
		found, err := existing.Contains(ctx, id)
		if err != nil {
			return domain.Classify(err, domain.KindIOFailure, repo.Name(), "classify row")
		}
		if found {
			continue
		}
		if len(missing) == maxReportedIDs {
			more = true
			break
		}
		missing = append(missing, domain.FormatValue(id))
	}
	if len(missing) > 0 {
		return &domain.ImportError{
			Kind:    domain.KindMissingID,
			Entity:  repo.Name(),
			IDs:     missing,
			Message: fmt.Sprintf("Trying to update non-existing %s entities: %s", repo.Name(), domain.JoinSamples(missing, ", ", maxReportedIDs, more)),
		}
	}
	n, err := repo.Update(ctx, rows)
	if err != nil {
		return domain.Classify(err, domain.KindIOFailure, repo.Name(), "update")
	}
	m.observer.RowsWritten(repo.Name(), OperationUpdate, n)
	return nil
}

// convertID applies the id attribute's converter so that ids compare by
// their canonical value rather than the raw source value.
func convertID(entity string, idAttr domain.AttributeMetaData, row domain.Entity) (any, error) {
	id, err := idAttr.DataType.Convert(row[idAttr.Name])
	if err != nil {
		return nil, &domain.ImportError{Kind: domain.KindInvalidValue, Entity: entity, Message: "id " + idAttr.Name, Err: err}
	}
	return id, nil
}

// sampleIDs takes up to maxReportedIDs ids and reports whether more exist.
func sampleIDs(ids iter.Seq2[any, error]) ([]string, bool, error) {
	var out []string
	for id, err := range ids {
		if err != nil {
			return out, false, err
		}
		if len(out) == maxReportedIDs {
			return out, true, nil
		}
		out = append(out, domain.FormatValue(id))
	}
	return out, false, nil
}
