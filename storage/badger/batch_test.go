package badger

import (
	"context"
	"testing"

	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBatches(t *testing.T) storage.BatchRepository {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewBatchRepository(backend)
}

func TestBatchSaveAndGet(t *testing.T) {
	batches := setupBatches(t)
	ctx := context.Background()

	record := &core.BatchRecord{
		ExecutionID: "exec-1",
		Stage:       core.StageValidating,
	}
	require.NoError(t, batches.SaveBatch(ctx, record))
	assert.False(t, record.UpdatedAt.IsZero())

	got, err := batches.GetBatch(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, core.StageValidating, got.Stage)

	_, err = batches.GetBatch(ctx, "exec-unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBatchStageAdvancesForwardOnly(t *testing.T) {
	batches := setupBatches(t)
	ctx := context.Background()

	record := &core.BatchRecord{ExecutionID: "exec-1", Stage: core.StageValidating}
	require.NoError(t, batches.SaveBatch(ctx, record))

	record.Stage = core.StageBookkeeping
	require.NoError(t, batches.SaveBatch(ctx, record))

	record.Stage = core.StageValidating
	assert.ErrorIs(t, batches.SaveBatch(ctx, record), core.ErrStageRegression)

	record.Stage = core.StageAborted
	require.NoError(t, batches.SaveBatch(ctx, record), "abort is reachable from any stage")

	record.Stage = core.StageFinalized
	assert.ErrorIs(t, batches.SaveBatch(ctx, record), core.ErrStageRegression,
		"terminal stages cannot be left")
}

func TestBatchSaveSameStageUpdatesFields(t *testing.T) {
	batches := setupBatches(t)
	ctx := context.Background()

	record := &core.BatchRecord{ExecutionID: "exec-1", Stage: core.StageValidating}
	require.NoError(t, batches.SaveBatch(ctx, record))

	record.ManifestPath = "/tmp/exec-1.manifest.jsonl"
	require.NoError(t, batches.SaveBatch(ctx, record))

	got, err := batches.GetBatch(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/exec-1.manifest.jsonl", got.ManifestPath)
}

func TestBatchSaveResult_ExactlyOnce(t *testing.T) {
	batches := setupBatches(t)
	ctx := context.Background()

	result := &core.ItemResult{
		URI:           "file:///a.txt",
		Outcome:       core.OutcomeSucceeded,
		UnitsProduced: 4,
	}
	created, err := batches.SaveResult(ctx, "exec-1", result)
	require.NoError(t, err)
	assert.True(t, created)

	// A second write for the same URI keeps the first result.
	dup := &core.ItemResult{URI: "file:///a.txt", Outcome: core.OutcomeFailed, Error: "late"}
	created, err = batches.SaveResult(ctx, "exec-1", dup)
	require.NoError(t, err)
	assert.False(t, created)

	results, err := batches.GetResults(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.OutcomeSucceeded, results[0].Outcome)
	assert.Equal(t, 4, results[0].UnitsProduced)
}

func TestBatchGetResults_OrderedAndScoped(t *testing.T) {
	batches := setupBatches(t)
	ctx := context.Background()

	for _, uri := range []string{"file:///c.txt", "file:///a.txt", "file:///b.txt"} {
		_, err := batches.SaveResult(ctx, "exec-1", &core.ItemResult{URI: uri, Outcome: core.OutcomeSucceeded})
		require.NoError(t, err)
	}
	_, err := batches.SaveResult(ctx, "exec-2", &core.ItemResult{URI: "file:///z.txt", Outcome: core.OutcomeFailed, Error: "x"})
	require.NoError(t, err)

	results, err := batches.GetResults(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "file:///a.txt", results[0].URI)
	assert.Equal(t, "file:///b.txt", results[1].URI)
	assert.Equal(t, "file:///c.txt", results[2].URI)

	other, err := batches.GetResults(ctx, "exec-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
}

func TestBatchSaveResult_Validation(t *testing.T) {
	batches := setupBatches(t)
	ctx := context.Background()

	_, err := batches.SaveResult(ctx, "", &core.ItemResult{URI: "file:///a.txt"})
	assert.ErrorIs(t, err, core.ErrEmptyExecutionID)

	_, err = batches.SaveResult(ctx, "exec-1", &core.ItemResult{})
	assert.ErrorIs(t, err, core.ErrEmptyURI)
}
