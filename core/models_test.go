package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent_Deterministic(t *testing.T) {
	id1 := IDFromContent("s3://bucket/reports/q1.pdf")
	id2 := IDFromContent("s3://bucket/reports/q1.pdf")
	assert.Equal(t, id1, id2, "identical content should produce identical IDs")

	id3 := IDFromContent("s3://bucket/reports/q2.pdf")
	assert.NotEqual(t, id1, id3, "different content should produce different IDs")
}

func TestChunkID_DependsOnPosition(t *testing.T) {
	a := ChunkID("file://docs/guide.txt", 0)
	b := ChunkID("file://docs/guide.txt", 1)
	c := ChunkID("file://docs/guide.txt", 0)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}

func TestFingerprint_Deterministic(t *testing.T) {
	fp1 := Fingerprint([]byte("hello world"))
	fp2 := Fingerprint([]byte("hello world"))
	fp3 := Fingerprint([]byte("hello worlds"))

	assert.Equal(t, fp1, fp2)
	assert.NotEqual(t, fp1, fp3)
	assert.Len(t, fp1, 32, "16-byte digest hex encoded")
}

func TestActionJSONRoundTrip(t *testing.T) {
	item := ManifestItem{
		URI:         "file://docs/a.txt",
		Action:      ActionUpsert,
		Fingerprint: "abc123",
	}

	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"upsert"`)

	var decoded ManifestItem
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, item, decoded)
}

func TestActionUnmarshal_Invalid(t *testing.T) {
	var a Action
	err := a.UnmarshalText([]byte("truncate"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestOutcomeJSONRoundTrip(t *testing.T) {
	result := ItemResult{
		URI:           "file://docs/a.txt",
		Outcome:       OutcomeFailed,
		UnitsProduced: 0,
		Error:         "malformed document",
		Attempts:      1,
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"failed"`)

	var decoded ItemResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, result, decoded)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "complete", StatusComplete.String())
	assert.Equal(t, "deleted", StatusDeleted.String())
	assert.Equal(t, "status(42)", Status(42).String())
}

func TestStageTerminal(t *testing.T) {
	assert.False(t, StageValidating.Terminal())
	assert.False(t, StageFanningOut.Terminal())
	assert.True(t, StageFinalized.Terminal())
	assert.True(t, StageAborted.Terminal())
}
