package importer

import (
	"context"
	"sync"

	"emxloader/internal/hugeset"
	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// fakeRepo records every call the merge engine makes.
type fakeRepo struct {
	meta    domain.EntityMetaData
	rows    map[string]domain.Entity
	order   []string
	lookups []int
	adds    [][]domain.Entity
	updates [][]domain.Entity
	addErr  error
}

func newFakeRepo(idType domain.FieldType, existing ...domain.Entity) *fakeRepo {
	r := &fakeRepo{
		meta: domain.EntityMetaData{
			Name:        "thing",
			SimpleName:  "thing",
			IDAttribute: "id",
			Attributes: []domain.AttributeMetaData{
				{Name: "id", DataType: idType},
				{Name: "v", DataType: domain.FieldString, Nillable: true},
				{Name: "a", DataType: domain.FieldString, Nillable: true},
			},
		},
		rows: make(map[string]domain.Entity),
	}
	for _, e := range existing {
		r.put(e)
	}
	return r
}

func (r *fakeRepo) put(e domain.Entity) {
	key, _ := domain.EncodeKey(e["id"])
	if _, ok := r.rows[key]; !ok {
		r.order = append(r.order, key)
	}
	r.rows[key] = e
}

func (r *fakeRepo) Name() string                          { return r.meta.Name }
func (r *fakeRepo) EntityMetaData() domain.EntityMetaData { return r.meta }
func (r *fakeRepo) Count(context.Context) (int64, error)  { return int64(len(r.rows)), nil }

func (r *fakeRepo) Add(_ context.Context, rows domain.RowStream) (int, error) {
	if r.addErr != nil {
		return 0, r.addErr
	}
	batch, err := domain.Collect(rows)
	if err != nil {
		return 0, err
	}
	r.adds = append(r.adds, batch)
	for _, e := range batch {
		r.put(e)
	}
	return len(batch), nil
}

func (r *fakeRepo) Update(_ context.Context, rows domain.RowStream) (int, error) {
	batch, err := domain.Collect(rows)
	if err != nil {
		return 0, err
	}
	r.updates = append(r.updates, batch)
	for _, e := range batch {
		r.put(e)
	}
	return len(batch), nil
}

func (r *fakeRepo) FindAll(_ context.Context, q *domain.Query) domain.RowStream {
	r.lookups = append(r.lookups, q.Disjuncts())
	var out []domain.Entity
	for _, k := range r.order {
		if q.Matches(r.rows[k]) {
			out = append(out, r.rows[k])
		}
	}
	return domain.Rows(out)
}

func (r *fakeRepo) FindOne(_ context.Context, id any) (domain.Entity, bool, error) {
	key, err := domain.EncodeKey(id)
	if err != nil {
		return nil, false, err
	}
	e, ok := r.rows[key]
	return e, ok, nil
}

// countingSets hands out hugesets and counts Close calls per set.
type countingSets struct {
	mu     sync.Mutex
	closes []int
}

type countedSet struct {
	*hugeset.Set
	owner *countingSets
	idx   int
}

func (c *countedSet) Close() error {
	c.owner.mu.Lock()
	c.owner.closes[c.idx]++
	c.owner.mu.Unlock()
	return c.Set.Close()
}

func (c *countingSets) factory() IDSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, 0)
	return &countedSet{Set: hugeset.New(hugeset.Options{}), owner: c, idx: len(c.closes) - 1}
}

type recordingObserver struct {
	lookups int
	written map[string]int
}

func (o *recordingObserver) LookupQuery(string, int) { o.lookups++ }
func (o *recordingObserver) RowsWritten(_, op string, n int) {
	if o.written == nil {
		o.written = make(map[string]int)
	}
	o.written[op] += n
}

func testLogger() (*logrus.Entry, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(log), hook
}

func newTestEngine(sets *countingSets, obs Observer) *MergeEngine {
	log, _ := testLogger()
	m := NewMergeEngine(hugeset.Options{}, obs, log)
	if sets != nil {
		m.newSet = sets.factory
	}
	return m
}

func ids(rows []domain.Entity) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r["id"]
	}
	return out
}
