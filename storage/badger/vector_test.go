package badger

import (
	"context"
	"testing"

	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupVectors(t *testing.T) storage.VectorRepository {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewVectorRepository(backend)
}

func testChunk(uri string, pos int, vector []float32) *core.Chunk {
	return &core.Chunk{
		ID:        core.ChunkID(uri, pos),
		SourceURI: uri,
		Position:  pos,
		Text:      "chunk text",
		Vector:    vector,
		Model:     "embeddinggemma",
	}
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	vectors := setupVectors(t)
	ctx := context.Background()

	desc := core.SchemaDescriptor{Collection: "documents", Dimensions: 4, Model: "embeddinggemma"}
	require.NoError(t, vectors.EnsureCollection(ctx, desc))
	require.NoError(t, vectors.EnsureCollection(ctx, desc), "re-running on every batch is safe")
}

func TestEnsureCollection_SchemaMismatch(t *testing.T) {
	vectors := setupVectors(t)
	ctx := context.Background()

	require.NoError(t, vectors.EnsureCollection(ctx, core.SchemaDescriptor{Collection: "documents", Dimensions: 4, Model: "embeddinggemma"}))

	err := vectors.EnsureCollection(ctx, core.SchemaDescriptor{Collection: "documents", Dimensions: 8, Model: "embeddinggemma"})
	assert.ErrorIs(t, err, storage.ErrCollectionMismatch)
}

func TestEnsureCollection_InvalidDescriptor(t *testing.T) {
	vectors := setupVectors(t)
	ctx := context.Background()

	assert.Error(t, vectors.EnsureCollection(ctx, core.SchemaDescriptor{Dimensions: 4}))
	assert.Error(t, vectors.EnsureCollection(ctx, core.SchemaDescriptor{Collection: "documents"}))
}

func TestUpsertAndCountBySource(t *testing.T) {
	vectors := setupVectors(t)
	ctx := context.Background()

	chunks := []*core.Chunk{
		testChunk("file:///a.txt", 0, []float32{1, 0}),
		testChunk("file:///a.txt", 1, []float32{0, 1}),
		testChunk("file:///b.txt", 0, []float32{1, 1}),
	}
	require.NoError(t, vectors.UpsertChunks(ctx, chunks...))

	count, err := vectors.CountBySource(ctx, "file:///a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = vectors.CountBySource(ctx, "file:///missing.txt")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpsertChunks_ReplacesSamePosition(t *testing.T) {
	vectors := setupVectors(t)
	ctx := context.Background()

	require.NoError(t, vectors.UpsertChunks(ctx, testChunk("file:///a.txt", 0, []float32{1, 0})))
	require.NoError(t, vectors.UpsertChunks(ctx, testChunk("file:///a.txt", 0, []float32{0, 1})))

	count, err := vectors.CountBySource(ctx, "file:///a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "same source and position overwrites, enabling safe retries")
}

func TestDeleteBySource(t *testing.T) {
	vectors := setupVectors(t)
	ctx := context.Background()

	require.NoError(t, vectors.UpsertChunks(ctx,
		testChunk("file:///a.txt", 0, []float32{1, 0}),
		testChunk("file:///a.txt", 1, []float32{0, 1}),
		testChunk("file:///b.txt", 0, []float32{1, 1}),
	))

	removed, err := vectors.DeleteBySource(ctx, "file:///a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := vectors.CountBySource(ctx, "file:///a.txt")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Sibling documents are untouched.
	count, err = vectors.CountBySource(ctx, "file:///b.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Deleting an absent source is not an error.
	removed, err = vectors.DeleteBySource(ctx, "file:///a.txt")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestFindSimilar(t *testing.T) {
	vectors := setupVectors(t)
	ctx := context.Background()

	require.NoError(t, vectors.UpsertChunks(ctx,
		testChunk("file:///a.txt", 0, []float32{1, 0}),
		testChunk("file:///b.txt", 0, []float32{0.9, 0.1}),
		testChunk("file:///c.txt", 0, []float32{0, 1}),
	))

	matches, err := vectors.FindSimilar(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "file:///a.txt", matches[0].Chunk.SourceURI)
	assert.Equal(t, "file:///b.txt", matches[1].Chunk.SourceURI)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestPurge(t *testing.T) {
	vectors := setupVectors(t)
	ctx := context.Background()

	desc := core.SchemaDescriptor{Collection: "documents", Dimensions: 2, Model: "embeddinggemma"}
	require.NoError(t, vectors.EnsureCollection(ctx, desc))
	require.NoError(t, vectors.UpsertChunks(ctx, testChunk("file:///a.txt", 0, []float32{1, 0})))

	require.NoError(t, vectors.Purge(ctx))

	count, err := vectors.CountBySource(ctx, "file:///a.txt")
	require.NoError(t, err)
	assert.Zero(t, count)

	// A different schema can now be created.
	require.NoError(t, vectors.EnsureCollection(ctx, core.SchemaDescriptor{Collection: "documents", Dimensions: 8, Model: "titan"}))
}
