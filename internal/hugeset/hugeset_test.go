package hugeset

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetInMemory(t *testing.T) {
	ctx := context.Background()
	s := New(Options{SpillThreshold: 10})
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Add(ctx, int64(1)))
	require.NoError(t, s.Add(ctx, 1))
	require.NoError(t, s.Add(ctx, "1"))
	require.NoError(t, s.Add(ctx, nil))
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Spilled())

	ok, err := s.Contains(ctx, int32(1))
	require.NoError(t, err)
	assert.True(t, ok, "integer widths compare by value")
	ok, err = s.Contains(ctx, "2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetSpillsToTempFileAndCleansUp(t *testing.T) {
	ctx := context.Background()
	s := New(Options{SpillThreshold: 3, TempDir: t.TempDir()})

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Add(ctx, int64(i)))
	}
	require.NoError(t, s.Add(ctx, int64(4)))
	require.True(t, s.Spilled())
	assert.Equal(t, 10, s.Len())

	path := s.Path()
	_, err := os.Stat(path)
	require.NoError(t, err, "spill file should exist")

	for i := 0; i < 10; i++ {
		ok, err := s.Contains(ctx, i)
		require.NoError(t, err)
		assert.True(t, ok, "missing %d", i)
	}
	ok, err := s.Contains(ctx, int64(11))
	require.NoError(t, err)
	assert.False(t, ok)

	seen := map[any]bool{}
	for v, err := range s.All(ctx) {
		require.NoError(t, err)
		seen[v] = true
	}
	assert.Len(t, seen, 10)
	assert.True(t, seen[int64(7)])

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "spill file must be deleted on close")
}

func TestSetIterationIsStable(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	defer func() { _ = s.Close() }()
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, s.Add(ctx, v))
	}
	var got []any
	for v, err := range s.All(ctx) {
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.ElementsMatch(t, []any{"a", "b", "c"}, got)
}

func TestClosedSetRejectsAdds(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	require.NoError(t, s.Close())
	assert.Error(t, s.Add(ctx, "x"))
	ok, err := s.Contains(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, countAll(ctx, s))
}

func TestUnsupportedKeyType(t *testing.T) {
	s := New(Options{})
	defer func() { _ = s.Close() }()
	assert.Error(t, s.Add(context.Background(), []int{1}))
}

func countAll(ctx context.Context, s *Set) int {
	n := 0
	for range s.All(ctx) {
		n++
	}
	return n
}
