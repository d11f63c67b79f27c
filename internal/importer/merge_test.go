package importer

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"emxloader/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeAddWithoutConflict(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt)
	rows := []domain.Entity{{"id": int64(1), "a": "x"}, {"id": int64(2), "a": "y"}}

	n, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionAdd)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, repo.lookups, "empty repository short-circuits lookups")
	require.Len(t, repo.adds, 1)
	assert.Equal(t, rows, repo.adds[0])
	assert.Len(t, repo.rows, 2)
}

func TestMergeAddConflict(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt, domain.Entity{"id": int64(1)})
	rows := []domain.Entity{{"id": int64(1)}, {"id": int64(2)}}

	_, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionAdd)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindDuplicateID))
	var ie *domain.ImportError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, []string{"1"}, ie.IDs)
	assert.Equal(t, "Trying to add existing thing entities as new insert: 1", ie.Message)
	assert.Empty(t, repo.adds)
	assert.Len(t, repo.rows, 1)
}

func TestMergeAddConflictTruncatesSamples(t *testing.T) {
	var existing, rows []domain.Entity
	for i := int64(1); i <= 8; i++ {
		existing = append(existing, domain.Entity{"id": i})
		rows = append(rows, domain.Entity{"id": i})
	}
	repo := newFakeRepo(domain.FieldInt, existing...)
	_, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionAdd)
	var ie *domain.ImportError
	require.True(t, errors.As(err, &ie))
	assert.Len(t, ie.IDs, 5)
	assert.True(t, strings.HasSuffix(ie.Message, " and more."), ie.Message)
}

func TestMergeAddUpdateExistingMixed(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt, domain.Entity{"id": int64(1), "v": "old"})
	rows := []domain.Entity{{"id": int64(1), "v": "new"}, {"id": int64(2), "v": "new2"}}

	n, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionAddUpdateExisting)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, repo.updates, 1)
	assert.Equal(t, []domain.Entity{{"id": int64(1), "v": "new"}}, repo.updates[0])
	require.Len(t, repo.adds, 1)
	assert.Equal(t, []domain.Entity{{"id": int64(2), "v": "new2"}}, repo.adds[0])
}

func TestMergeUpdateMissingIDs(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt, domain.Entity{"id": int64(1)})
	var rows []domain.Entity
	for i := int64(1); i <= 7; i++ {
		rows = append(rows, domain.Entity{"id": i})
	}

	_, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionUpdate)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindMissingID))
	var ie *domain.ImportError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, []string{"2", "3", "4", "5", "6"}, ie.IDs)
	assert.True(t, strings.HasSuffix(ie.Message, "2, 3, 4, 5, 6 and more."), ie.Message)
	assert.NotContains(t, ie.Message, "7")
	assert.Empty(t, repo.updates)
}

func TestMergeUpdateAllExisting(t *testing.T) {
	repo := newFakeRepo(domain.FieldString, domain.Entity{"id": "a"}, domain.Entity{"id": "b"})
	rows := []domain.Entity{{"id": "a", "v": "1"}, {"id": "b", "v": "2"}}
	n, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionUpdate)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, repo.updates, 1, "update applies in one bulk call")
	assert.Len(t, repo.updates[0], 2)
}

func TestMergeBatchBounds(t *testing.T) {
	var existing, rows []domain.Entity
	for i := int64(0); i < 250; i++ {
		existing = append(existing, domain.Entity{"id": i})
	}
	for i := int64(0); i < 2500; i++ {
		rows = append(rows, domain.Entity{"id": i, "v": "x"})
	}
	repo := newFakeRepo(domain.FieldLong, existing...)
	obs := &recordingObserver{}

	n, err := newTestEngine(nil, obs).Update(context.Background(), repo, domain.Rows(rows), domain.ActionAddUpdateExisting)
	require.NoError(t, err)
	assert.Equal(t, 2500, n)

	require.Len(t, repo.lookups, 25)
	for _, p := range repo.lookups {
		assert.LessOrEqual(t, p, lookupBatchSize)
	}
	assert.Equal(t, 25, obs.lookups)

	added, updated := 0, 0
	for _, b := range repo.adds {
		assert.LessOrEqual(t, len(b), writeBatchSize)
		added += len(b)
	}
	for _, b := range repo.updates {
		assert.LessOrEqual(t, len(b), writeBatchSize)
		updated += len(b)
	}
	assert.Equal(t, 2250, added)
	assert.Equal(t, 250, updated)
	assert.Equal(t, 2250, obs.written[OperationAdd])
	assert.Equal(t, 250, obs.written[OperationUpdate])
}

func TestMergeLookupFlushesPartialBatch(t *testing.T) {
	var rows []domain.Entity
	for i := int64(0); i < 150; i++ {
		rows = append(rows, domain.Entity{"id": i})
	}
	repo := newFakeRepo(domain.FieldInt, domain.Entity{"id": int64(149)})
	_, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionAddUpdateExisting)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{100, 50}, repo.lookups)
	require.Len(t, repo.updates, 1)
	assert.Equal(t, []any{int64(149)}, ids(repo.updates[0]))
}

func TestMergeCoercesIDsBeforeClassifying(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt, domain.Entity{"id": int64(5), "v": "old"})
	rows := []domain.Entity{{"id": "5", "v": "new"}, {"id": "6.0", "v": "other"}}

	_, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionAddUpdateExisting)
	require.NoError(t, err)
	require.Len(t, repo.updates, 1)
	assert.Equal(t, "new", repo.updates[0][0]["v"])
	require.Len(t, repo.adds, 1)
	assert.Equal(t, "other", repo.adds[0][0]["v"])
}

func TestMergeRejectsUnconvertibleID(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt)
	_, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows([]domain.Entity{{"id": "abc"}}), domain.ActionAdd)
	assert.True(t, domain.IsKind(err, domain.KindInvalidValue), "got %v", err)
}

func TestMergeRejectsIDsOutOfIntegerRange(t *testing.T) {
	repo := newFakeRepo(domain.FieldLong, domain.Entity{"id": int64(math.MinInt64), "v": "old"})
	rows := []domain.Entity{{"id": "9223372036854775808", "v": "new"}}
	_, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionAddUpdateExisting)
	assert.True(t, domain.IsKind(err, domain.KindInvalidValue), "got %v", err)
	assert.Empty(t, repo.updates)
	assert.Empty(t, repo.adds)
}

func TestMergeCountsDuplicateRows(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt)
	rows := []domain.Entity{{"id": int64(1)}, {"id": int64(1)}, {"v": "no id"}}
	n, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows(rows), domain.ActionAddUpdateExisting)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMergeUnknownActionStillLooksUp(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt, domain.Entity{"id": int64(1)})
	n, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows([]domain.Entity{{"id": int64(1)}}), domain.DatabaseAction("MERGE"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, repo.lookups, 1)
	assert.Empty(t, repo.adds)
	assert.Empty(t, repo.updates)
}

func TestMergeClosesSetsExactlyOnce(t *testing.T) {
	cases := []struct {
		name   string
		repo   *fakeRepo
		action domain.DatabaseAction
		fails  bool
	}{
		{"success", newFakeRepo(domain.FieldInt), domain.ActionAdd, false},
		{"duplicate", newFakeRepo(domain.FieldInt, domain.Entity{"id": int64(1)}), domain.ActionAdd, true},
		{"missing", newFakeRepo(domain.FieldInt), domain.ActionUpdate, true},
		{"write failure", func() *fakeRepo { r := newFakeRepo(domain.FieldInt); r.addErr = errors.New("disk full"); return r }(), domain.ActionAddUpdateExisting, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sets := &countingSets{}
			_, err := newTestEngine(sets, nil).Update(context.Background(), tc.repo, domain.Rows([]domain.Entity{{"id": int64(1)}}), tc.action)
			assert.Equal(t, tc.fails, err != nil, "err=%v", err)
			require.Len(t, sets.closes, 2)
			assert.Equal(t, []int{1, 1}, sets.closes)
		})
	}
}

func TestMergeWriteFailureIsIOFailure(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt)
	repo.addErr = errors.New("disk full")
	_, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.Rows([]domain.Entity{{"id": int64(1)}}), domain.ActionAdd)
	assert.True(t, domain.IsKind(err, domain.KindIOFailure))
	assert.ErrorContains(t, err, "disk full")
}

func TestMergeSourceFailure(t *testing.T) {
	repo := newFakeRepo(domain.FieldInt)
	_, err := newTestEngine(nil, nil).Update(context.Background(), repo, domain.FailedRows(errors.New("sheet unreadable")), domain.ActionAdd)
	assert.True(t, domain.IsKind(err, domain.KindIOFailure))
}
