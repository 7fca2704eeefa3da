package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
)

// Bookkeeper prepares the vector store for a batch. Failure here is systemic:
// if the collection cannot be ensured, no item processing begins.
type Bookkeeper struct {
	vectors storage.VectorRepository
	logger  *slog.Logger
}

// NewBookkeeper creates a bookkeeper over the given vector repository.
func NewBookkeeper(vectors storage.VectorRepository, logger *slog.Logger) (*Bookkeeper, error) {
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bookkeeper{vectors: vectors, logger: logger.With("component", "bookkeeper")}, nil
}

// Ensure makes sure the collection described by desc exists with the expected
// schema. Idempotent: calling it on every batch is the intended usage.
func (b *Bookkeeper) Ensure(ctx context.Context, desc core.SchemaDescriptor) error {
	if desc.Collection == "" {
		return fmt.Errorf("bookkeeper: collection name required")
	}
	if desc.Dimensions < 1 {
		return fmt.Errorf("bookkeeper: dimensions must be positive")
	}
	if err := b.vectors.EnsureCollection(ctx, desc); err != nil {
		return fmt.Errorf("ensure collection %s: %w", desc.Collection, err)
	}
	b.logger.Debug("collection ensured", "collection", desc.Collection, "dimensions", desc.Dimensions, "model", desc.Model)
	return nil
}

// Purge drops every chunk and the collection descriptor. The next Ensure
// recreates the collection from scratch.
func (b *Bookkeeper) Purge(ctx context.Context) error {
	if err := b.vectors.Purge(ctx); err != nil {
		return fmt.Errorf("purge collection: %w", err)
	}
	b.logger.Info("vector collection purged")
	return nil
}
