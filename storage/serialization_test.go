package storage

import (
	"testing"
	"time"

	"github.com/lodestone-ai/corpusflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEntryRoundTrip(t *testing.T) {
	entry := &core.CacheEntry{
		URI:         "file:///corpus/handbook.pdf",
		Fingerprint: "9f2c1a",
		ContentType: "application/pdf",
		Size:        42137,
		Status:      core.StatusComplete,
		Version:     7,
		UpdatedAt:   time.Now().UTC().Truncate(time.Microsecond),
		IngestedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalCacheEntry(MarshalCacheEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)
}

func TestCacheEntryRoundTrip_ZeroIngestedAt(t *testing.T) {
	entry := &core.CacheEntry{
		URI:         "file:///corpus/new.txt",
		Fingerprint: "ab01",
		ContentType: "text/plain",
		Status:      core.StatusPending,
		Version:     1,
		UpdatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalCacheEntry(MarshalCacheEntry(entry))
	require.NoError(t, err)
	assert.True(t, decoded.IngestedAt.IsZero(), "zero time survives the round trip")
	assert.Equal(t, entry, decoded)
}

func TestBatchRecordRoundTrip(t *testing.T) {
	record := &core.BatchRecord{
		ExecutionID:  "a2b4c6d8",
		Stage:        core.StageFinalized,
		ManifestPath: "/var/lib/corpusflow/a2b4c6d8.manifest.jsonl",
		ResultPath:   "/var/lib/corpusflow/a2b4c6d8.results.jsonl",
		StartedAt:    time.Now().UTC().Truncate(time.Microsecond),
		UpdatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalBatchRecord(MarshalBatchRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestItemResultRoundTrip(t *testing.T) {
	result := &core.ItemResult{
		URI:           "file:///corpus/broken.docx",
		Outcome:       core.OutcomeFailed,
		UnitsProduced: 0,
		Error:         "malformed document: unsupported content type",
		Attempts:      3,
	}

	decoded, err := UnmarshalItemResult(MarshalItemResult(result))
	require.NoError(t, err)
	assert.Equal(t, result, decoded)
}

func TestChunkRoundTrip(t *testing.T) {
	chunk := &core.Chunk{
		ID:        core.ChunkID("file:///corpus/handbook.pdf", 3),
		SourceURI: "file:///corpus/handbook.pdf",
		Position:  3,
		Text:      "Enrollment opens on the first Monday of the term.",
		Vector:    []float32{0.25, -0.5, 0.75, 1.0},
		Model:     "embeddinggemma",
		Metadata:  map[string]string{"source": "file:///corpus/handbook.pdf", "page": "12"},
	}

	decoded, err := UnmarshalChunk(MarshalChunk(chunk))
	require.NoError(t, err)
	assert.Equal(t, chunk, decoded)
}

func TestChunkRoundTrip_EmptyVectorAndMetadata(t *testing.T) {
	chunk := &core.Chunk{
		ID:        core.ChunkID("file:///corpus/a.txt", 0),
		SourceURI: "file:///corpus/a.txt",
		Text:      "short",
		Model:     "embeddinggemma",
	}

	decoded, err := UnmarshalChunk(MarshalChunk(chunk))
	require.NoError(t, err)
	assert.Equal(t, chunk, decoded)
}

func TestUnmarshalTruncated(t *testing.T) {
	entry := &core.CacheEntry{
		URI:         "file:///corpus/a.txt",
		Fingerprint: "aa",
		Status:      core.StatusPending,
		UpdatedAt:   time.Now().UTC(),
	}
	data := MarshalCacheEntry(entry)

	_, err := UnmarshalCacheEntry(data[:len(data)/2])
	assert.Error(t, err, "truncated input must not decode")
}
