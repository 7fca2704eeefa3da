package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/corpusflow/blob"
	"github.com/lodestone-ai/corpusflow/core"
)

func listObjects(objs ...blob.Object) []blob.Object { return objs }

func TestValidatorNewCorpus(t *testing.T) {
	cache, _, _ := newTestRepos(t)
	validator, err := NewValidator(cache, testConfig(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	manifestPath := ManifestPath(t.TempDir(), "exec")
	listing := listObjects(
		blob.Object{URI: "b.txt", Fingerprint: "fb", ContentType: "text/plain", Size: 10},
		blob.Object{URI: "a.txt", Fingerprint: "fa", ContentType: "text/plain", Size: 10},
	)

	result, err := validator.Validate(ctx, listing, manifestPath)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.Len(t, result.Items, 2)

	// URI ordered, all upserts.
	assert.Equal(t, "a.txt", result.Items[0].URI)
	assert.Equal(t, "b.txt", result.Items[1].URI)
	for _, item := range result.Items {
		assert.Equal(t, core.ActionUpsert, item.Action)
	}

	// Manifest durably written.
	onDisk, err := ReadManifest(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, result.Items, onDisk)
}

func TestValidatorUnchangedCorpusYieldsEmptyManifest(t *testing.T) {
	cache, _, _ := newTestRepos(t)
	validator, err := NewValidator(cache, testConfig(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	listing := listObjects(blob.Object{URI: "a.txt", Fingerprint: "fa", ContentType: "text/plain", Size: 10})

	result, err := validator.Validate(ctx, listing, ManifestPath(t.TempDir(), "e1"))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	// Simulate the fan-out completing the item.
	entry, err := cache.Get(ctx, "a.txt")
	require.NoError(t, err)
	_, err = cache.SetStatus(ctx, "a.txt", entry.Version, core.StatusComplete)
	require.NoError(t, err)

	// Same listing again: nothing to do.
	result, err = validator.Validate(ctx, listing, ManifestPath(t.TempDir(), "e2"))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Items)
}

func TestValidatorChangedFingerprintReselected(t *testing.T) {
	cache, _, _ := newTestRepos(t)
	validator, err := NewValidator(cache, testConfig(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	result, err := validator.Validate(ctx,
		listObjects(blob.Object{URI: "a.txt", Fingerprint: "v1", ContentType: "text/plain", Size: 10}),
		ManifestPath(t.TempDir(), "e1"))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	entry, err := cache.Get(ctx, "a.txt")
	require.NoError(t, err)
	_, err = cache.SetStatus(ctx, "a.txt", entry.Version, core.StatusComplete)
	require.NoError(t, err)

	result, err = validator.Validate(ctx,
		listObjects(blob.Object{URI: "a.txt", Fingerprint: "v2", ContentType: "text/plain", Size: 12}),
		ManifestPath(t.TempDir(), "e2"))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, core.ActionUpsert, result.Items[0].Action)
	assert.Equal(t, "v2", result.Items[0].Fingerprint)
}

func TestValidatorVanishedObjectsSelectedForDeletion(t *testing.T) {
	cache, _, _ := newTestRepos(t)
	validator, err := NewValidator(cache, testConfig(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = validator.Validate(ctx,
		listObjects(
			blob.Object{URI: "keep.txt", Fingerprint: "fk", ContentType: "text/plain", Size: 10},
			blob.Object{URI: "gone.txt", Fingerprint: "fg", ContentType: "text/plain", Size: 10},
		),
		ManifestPath(t.TempDir(), "e1"))
	require.NoError(t, err)

	for _, uri := range []string{"keep.txt", "gone.txt"} {
		entry, err := cache.Get(ctx, uri)
		require.NoError(t, err)
		_, err = cache.SetStatus(ctx, uri, entry.Version, core.StatusComplete)
		require.NoError(t, err)
	}

	result, err := validator.Validate(ctx,
		listObjects(blob.Object{URI: "keep.txt", Fingerprint: "fk", ContentType: "text/plain", Size: 10}),
		ManifestPath(t.TempDir(), "e2"))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "gone.txt", result.Items[0].URI)
	assert.Equal(t, core.ActionDelete, result.Items[0].Action)
}

func TestValidatorReappearingDeletedObjectResurrected(t *testing.T) {
	cache, _, _ := newTestRepos(t)
	validator, err := NewValidator(cache, testConfig(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	obj := blob.Object{URI: "a.txt", Fingerprint: "fa", ContentType: "text/plain", Size: 10}

	_, err = validator.Validate(ctx, listObjects(obj), ManifestPath(t.TempDir(), "e1"))
	require.NoError(t, err)

	// Vanishes in one batch, returns in the next with identical content.
	_, err = validator.Validate(ctx, listObjects(), ManifestPath(t.TempDir(), "e2"))
	require.NoError(t, err)

	result, err := validator.Validate(ctx, listObjects(obj), ManifestPath(t.TempDir(), "e3"))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, core.ActionUpsert, result.Items[0].Action)
}

func TestValidatorFiltersUnsupportedTypes(t *testing.T) {
	cache, _, _ := newTestRepos(t)
	validator, err := NewValidator(cache, testConfig(t), nil)
	require.NoError(t, err)

	result, err := validator.Validate(context.Background(),
		listObjects(
			blob.Object{URI: "a.txt", Fingerprint: "fa", ContentType: "text/plain", Size: 10},
			blob.Object{URI: "b.bin", Fingerprint: "fb", ContentType: "application/octet-stream", Size: 10},
			blob.Object{URI: "c.mp4", Fingerprint: "fc", ContentType: "video/mp4", Size: 10},
		),
		ManifestPath(t.TempDir(), "e1"))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "a.txt", result.Items[0].URI)
}

func TestValidatorRetriesFailedEntries(t *testing.T) {
	cache, _, _ := newTestRepos(t)
	validator, err := NewValidator(cache, testConfig(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	listing := listObjects(blob.Object{URI: "a.txt", Fingerprint: "fa", ContentType: "text/plain", Size: 10})

	_, err = validator.Validate(ctx, listing, ManifestPath(t.TempDir(), "e1"))
	require.NoError(t, err)

	entry, err := cache.Get(ctx, "a.txt")
	require.NoError(t, err)
	_, err = cache.SetStatus(ctx, "a.txt", entry.Version, core.StatusFailed)
	require.NoError(t, err)

	// The failed entry gets another chance on the next batch.
	result, err := validator.Validate(ctx, listing, ManifestPath(t.TempDir(), "e2"))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	entry, err = cache.Get(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, entry.Status)
}

func TestValidatorResetsStrandedProcessingEntries(t *testing.T) {
	cache, _, _ := newTestRepos(t)
	validator, err := NewValidator(cache, testConfig(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	listing := listObjects(blob.Object{URI: "a.txt", Fingerprint: "fa", ContentType: "text/plain", Size: 10})

	_, err = validator.Validate(ctx, listing, ManifestPath(t.TempDir(), "e1"))
	require.NoError(t, err)

	// Simulate a crash mid-processing.
	entry, err := cache.Get(ctx, "a.txt")
	require.NoError(t, err)
	_, err = cache.SetStatus(ctx, "a.txt", entry.Version, core.StatusProcessing)
	require.NoError(t, err)

	result, err := validator.Validate(ctx, listing, ManifestPath(t.TempDir(), "e2"))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "a.txt", result.Items[0].URI)
}

func TestValidatorEmptyCorpusEmptyCache(t *testing.T) {
	cache, _, _ := newTestRepos(t)
	validator, err := NewValidator(cache, testConfig(t), nil)
	require.NoError(t, err)

	result, err := validator.Validate(context.Background(), nil, ManifestPath(t.TempDir(), "e1"))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Items)
}
