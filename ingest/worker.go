// Copyright 2025 Lodestone AI
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/lodestone-ai/corpusflow/ai"
	"github.com/lodestone-ai/corpusflow/blob"
	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
)

// Worker processes one manifest item to completion. Implementations must be
// safe for concurrent use: the fan-out processor calls Process from multiple
// pool slots at once.
//
// The returned count is the number of units (chunks) produced for an upsert,
// or removed for a delete. Errors marked Terminal are not retried.
type Worker interface {
	Process(ctx context.Context, item core.ManifestItem) (int, error)
}

// EmbeddingWorker is the default Worker: it fetches document content, parses
// it by content type, chunks it deterministically, embeds every chunk, and
// replaces the document's vectors in the store.
type EmbeddingWorker struct {
	store    blob.Store
	vectors  storage.VectorRepository
	embedder ai.Embedder
	chunker  *Chunker
	model    string
	logger   *slog.Logger
}

var _ Worker = (*EmbeddingWorker)(nil)

// NewEmbeddingWorker creates the default embedding worker.
func NewEmbeddingWorker(
	store blob.Store,
	vectors storage.VectorRepository,
	embedder ai.Embedder,
	config *Config,
	logger *slog.Logger,
) (*EmbeddingWorker, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingWorker{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		chunker:  NewChunker(config.ChunkSize, config.ChunkOverlap),
		model:    config.Model,
		logger:   logger.With("component", "worker"),
	}, nil
}

// Process handles one manifest item.
func (w *EmbeddingWorker) Process(ctx context.Context, item core.ManifestItem) (int, error) {
	switch item.Action {
	case core.ActionDelete:
		return w.processDelete(ctx, item)
	case core.ActionUpsert:
		return w.processUpsert(ctx, item)
	}
	return 0, Terminal(fmt.Errorf("%w: %d", core.ErrInvalidAction, int(item.Action)))
}

func (w *EmbeddingWorker) processDelete(ctx context.Context, item core.ManifestItem) (int, error) {
	removed, err := w.vectors.DeleteBySource(ctx, item.URI)
	if err != nil {
		return 0, fmt.Errorf("delete vectors for %s: %w", item.URI, err)
	}
	w.logger.Debug("removed document vectors", "uri", item.URI, "chunks", removed)
	return removed, nil
}

func (w *EmbeddingWorker) processUpsert(ctx context.Context, item core.ManifestItem) (int, error) {
	data, err := w.store.Fetch(ctx, item.URI)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			// The object vanished between listing and processing; the next
			// batch will select it for deletion.
			return 0, Terminal(err)
		}
		return 0, fmt.Errorf("fetch %s: %w", item.URI, err)
	}

	texts, err := w.parse(item.ContentType, data)
	if err != nil {
		return 0, err
	}
	if len(texts) == 0 {
		// Nothing to embed; clear any vectors a previous revision left behind.
		if _, err := w.vectors.DeleteBySource(ctx, item.URI); err != nil {
			return 0, fmt.Errorf("clear vectors for empty %s: %w", item.URI, err)
		}
		return 0, nil
	}

	metadata, err := w.store.FetchMetadata(ctx, item.URI)
	if err != nil {
		return 0, fmt.Errorf("fetch metadata for %s: %w", item.URI, err)
	}

	vectors, err := w.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", item.URI, err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks of %s", len(vectors), len(texts), item.URI)
	}

	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			ID:        core.ChunkID(item.URI, i),
			SourceURI: item.URI,
			Position:  i,
			Text:      text,
			Vector:    normalizeVector(vectors[i]),
			Model:     w.model,
			Metadata:  metadata,
		}
	}

	// Replace rather than merge: the new revision may produce fewer chunks
	// than the old one, and stale positions must not survive.
	if _, err := w.vectors.DeleteBySource(ctx, item.URI); err != nil {
		return 0, fmt.Errorf("clear old vectors for %s: %w", item.URI, err)
	}
	if err := w.vectors.UpsertChunks(ctx, chunks...); err != nil {
		return 0, fmt.Errorf("store vectors for %s: %w", item.URI, err)
	}

	w.logger.Debug("embedded document", "uri", item.URI, "chunks", len(chunks))
	return len(chunks), nil
}

// parse turns raw bytes into embeddable texts according to content type.
// Parse failures are terminal: the same bytes fail the same way every time.
func (w *EmbeddingWorker) parse(contentType string, data []byte) ([]string, error) {
	switch contentType {
	case "text/plain", "text/markdown":
		texts, err := w.chunker.Split(string(data))
		if err != nil {
			return nil, Terminal(fmt.Errorf("chunk document: %w", err))
		}
		return texts, nil
	case "text/csv":
		texts, err := csvRows(data)
		if err != nil {
			return nil, Terminal(fmt.Errorf("parse csv: %w", err))
		}
		return texts, nil
	}
	return nil, Terminal(fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType))
}

// csvRows renders each data row of a CSV file as one embeddable document of
// "header: value" lines. The first row is the header.
func csvRows(data []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	texts := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		var b strings.Builder
		for i, value := range row {
			if i > 0 {
				b.WriteString("\n")
			}
			if i < len(header) {
				b.WriteString(header[i])
				b.WriteString(": ")
			}
			b.WriteString(value)
		}
		texts = append(texts, b.String())
	}
	return texts, nil
}

// normalizeVector scales a vector to unit length so dot products compare as
// cosine similarity. Zero vectors are returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
