package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentbot/internal/domain"
)

func meta(id string) domain.Metadata {
	return domain.Metadata{SourceID: id, ChunkText: "text of " + id}
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx := NewIndex(3)
	res, err := idx.Search([]float32{1, 0, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, res)

	// Even a wrongly sized query is not an error against an empty index.
	res, err = idx.Search([]float32{1}, 4)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestAdd_DimensionMismatchIsAtomic(t *testing.T) {
	idx := NewIndex(3)
	require.NoError(t, idx.Add([][]float32{{1, 0, 0}}, []domain.Metadata{meta("a")}))

	err := idx.Add(
		[][]float32{{0, 1, 0}, {0, 1}},
		[]domain.Metadata{meta("b"), meta("c")},
	)
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 1, idx.Len())
}

func TestAdd_LengthMismatch(t *testing.T) {
	idx := NewIndex(2)
	err := idx.Add([][]float32{{1, 0}}, nil)
	require.Error(t, err)
	assert.Zero(t, idx.Len())
}

func TestAdd_RequiresSourceID(t *testing.T) {
	idx := NewIndex(2)
	err := idx.Add([][]float32{{1, 0}}, []domain.Metadata{{ChunkText: "orphan"}})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, idx.Len())
}

func TestSearch_OrderingAndTopK(t *testing.T) {
	idx := NewIndex(2)
	require.NoError(t, idx.Add(
		[][]float32{{0, 1}, {3, 4}, {1, 0}, {2, 0}, {0, 0}},
		[]domain.Metadata{meta("up"), meta("diag"), meta("right"), meta("right-long"), meta("zero")},
	))

	t.Run("top k larger than index", func(t *testing.T) {
		res, err := idx.Search([]float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, res, 5)
		for i := 1; i < len(res); i++ {
			assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
		}
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		res, err := idx.Search([]float32{5, 0}, 3)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, "right", res[0].Metadata.SourceID)
		assert.Equal(t, "right-long", res[1].Metadata.SourceID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-6)
		assert.InDelta(t, 1.0, res[1].Score, 1e-6)
		assert.Equal(t, "diag", res[2].Metadata.SourceID)
		assert.InDelta(t, 0.6, res[2].Score, 1e-6)
	})

	t.Run("zero vector scores zero", func(t *testing.T) {
		res, err := idx.Search([]float32{0, 0}, 5)
		require.NoError(t, err)
		for _, r := range res {
			assert.Zero(t, r.Score)
		}
	})
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	idx := NewIndex(2)
	require.NoError(t, idx.Add([][]float32{{1, 0}}, []domain.Metadata{meta("a")}))
	_, err := idx.Search([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestAdd_CopiesInput(t *testing.T) {
	idx := NewIndex(2)
	v := []float32{1, 0}
	require.NoError(t, idx.Add([][]float32{v}, []domain.Metadata{meta("a")}))
	v[0], v[1] = 0, 1

	res, err := idx.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	idx := NewIndex(2)
	require.NoError(t, idx.Add([][]float32{{1, 0}, {0, 1}}, []domain.Metadata{meta("a"), meta("b")}))

	path := filepath.Join(t.TempDir(), "idx", "snapshot.gob")
	require.NoError(t, WriteFile(path, idx.Snapshot()))

	var snap Snapshot
	require.NoError(t, ReadFile(path, &snap))
	restored := NewIndex(2)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, 2, restored.Len())

	res, err := restored.Search([]float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", res[0].Metadata.SourceID)
}

func TestRestore_Rejects(t *testing.T) {
	idx := NewIndex(2)
	err := idx.Restore(Snapshot{Dimension: 3})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	err = idx.Restore(Snapshot{Dimension: 2, Vectors: [][]float32{{1, 0}}})
	assert.Error(t, err)
	assert.Zero(t, idx.Len())
}
