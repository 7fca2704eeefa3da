package storage

import (
	"context"

	"github.com/lodestone-ai/corpusflow/core"
)

// CacheRepository is the change-detection cache. It is the single source of
// truth for whether a document's content has been processed.
// Implementations must be thread-safe and support concurrent writers keyed
// by document URI; writes to a single URI are atomic.
type CacheRepository interface {
	// Get retrieves the cache entry for a URI.
	// Returns ErrNotFound if no entry exists.
	Get(ctx context.Context, uri string) (*core.CacheEntry, error)

	// Upsert records the current fingerprint of a listed corpus object.
	// If no entry exists, one is created with StatusPending.
	// If the fingerprint differs from the stored one, the entry moves to
	// StatusPending with the new fingerprint.
	// If the fingerprint matches and the entry is StatusComplete, the call
	// is a no-op. A matching fingerprint on a non-complete entry leaves the
	// stored status untouched, except StatusDeleted: a deleted entry whose
	// object reappears is resurrected to StatusPending.
	// Returns the entry as stored after the call.
	Upsert(ctx context.Context, uri, fingerprint, contentType string, size int64) (*core.CacheEntry, error)

	// MarkDeleted transitions an entry to StatusDeleted, signalling that the
	// source object is gone and its vectors await removal. No-op if the
	// entry does not exist.
	MarkDeleted(ctx context.Context, uri string) error

	// SetStatus transitions an entry's status using compare-and-swap on the
	// entry version. Returns ErrVersionConflict if the stored version no
	// longer matches; the caller re-reads and retries its decision.
	// Reaching StatusComplete also stamps IngestedAt.
	SetStatus(ctx context.Context, uri string, version uint64, status core.Status) (*core.CacheEntry, error)

	// Delete removes an entry entirely (after its vectors are gone).
	// Returns ErrNotFound if the entry does not exist.
	Delete(ctx context.Context, uri string) error

	// ScanByStatus iterates entries with the given status in URI order,
	// calling fn for each. Iteration stops on the first error from fn.
	// The ordering makes interrupted scans restartable.
	ScanByStatus(ctx context.Context, status core.Status, fn func(*core.CacheEntry) error) error

	// Scan iterates all entries in URI order.
	Scan(ctx context.Context, fn func(*core.CacheEntry) error) error

	// Close releases repository resources.
	Close() error
}

// BatchRepository stores batch execution records and per-item results.
// The fan-out processor owns these records for the duration of one run.
type BatchRepository interface {
	// SaveBatch persists a batch execution record. Stage transitions are
	// validated against the stored record: stages advance strictly forward,
	// with Aborted reachable from any non-terminal stage.
	SaveBatch(ctx context.Context, record *core.BatchRecord) error

	// GetBatch retrieves a batch record by execution ID.
	// Returns ErrNotFound if no record exists.
	GetBatch(ctx context.Context, executionID string) (*core.BatchRecord, error)

	// SaveResult records the outcome for one manifest item. Each item's
	// outcome is recorded exactly once: if a result already exists for the
	// URI the stored result is kept and the call is a no-op.
	// Returns true if the result was newly recorded.
	SaveResult(ctx context.Context, executionID string, result *core.ItemResult) (bool, error)

	// GetResults retrieves all recorded results for an execution, ordered
	// by document URI.
	GetResults(ctx context.Context, executionID string) ([]*core.ItemResult, error)

	// Close releases repository resources.
	Close() error
}

// VectorRepository is the retrieval store holding embedded chunks.
// It must tolerate concurrent writers keyed by source document URI.
type VectorRepository interface {
	// EnsureCollection prepares the vector collection described by desc.
	// Idempotent: safe to call on every batch. Returns ErrCollectionMismatch
	// if the collection exists with an incompatible schema.
	EnsureCollection(ctx context.Context, desc core.SchemaDescriptor) error

	// UpsertChunks writes chunks (text, vector, metadata) into the
	// collection, replacing any chunks with the same IDs.
	UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error

	// DeleteBySource removes all chunks originating from a source document.
	// Returns the number of chunks removed (zero is not an error).
	DeleteBySource(ctx context.Context, sourceURI string) (int, error)

	// CountBySource returns the number of stored chunks for a source document.
	CountBySource(ctx context.Context, sourceURI string) (int, error)

	// FindSimilar returns the chunks most similar to the given vector,
	// ordered by similarity score (highest first), up to limit results.
	FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.ChunkMatch, error)

	// Purge drops all chunks and the collection descriptor.
	Purge(ctx context.Context) error

	// Close releases repository resources.
	Close() error
}
