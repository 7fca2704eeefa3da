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

// Package corpusflow ties the ingestion pipeline together: a filesystem
// corpus, a badger-backed change cache and vector store, an embedding
// service, and the batch orchestrator that moves documents between them.
package corpusflow

import (
	"context"
	"io"
	"log/slog"

	"github.com/lodestone-ai/corpusflow/ai"
	"github.com/lodestone-ai/corpusflow/ai/openai"
	"github.com/lodestone-ai/corpusflow/blob"
	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/ingest"
	"github.com/lodestone-ai/corpusflow/search"
	"github.com/lodestone-ai/corpusflow/storage"
	"github.com/lodestone-ai/corpusflow/storage/badger"
)

// Engine is the top-level handle over one corpusflow database. It owns the
// badger backend and its repositories, plus the embedder shared by ingestion
// and search.
type Engine struct {
	backend  *badger.Backend
	cache    storage.CacheRepository
	batches  storage.BatchRepository
	vectors  storage.VectorRepository
	store    blob.Store
	embedder ai.Embedder
	config   *ingest.Config
	logger   *slog.Logger

	progressWriter io.Writer
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	config         *ingest.Config
	aiConfig       *ai.Config
	embedder       ai.Embedder
	logger         *slog.Logger
	progressWriter io.Writer
}

// WithConfig replaces the default pipeline configuration.
func WithConfig(config *ingest.Config) EngineOption {
	return func(o *engineOptions) {
		o.config = config
	}
}

// WithEmbeddingConfig sets the embedding service configuration. Its Model and
// Dimensions should agree with the pipeline configuration; when this option is
// absent the service config is derived from the pipeline one.
func WithEmbeddingConfig(config *ai.Config) EngineOption {
	return func(o *engineOptions) {
		o.aiConfig = config
	}
}

// WithEmbedder injects an embedder directly, bypassing the OpenAI-compatible
// client. Intended for tests.
func WithEmbedder(embedder ai.Embedder) EngineOption {
	return func(o *engineOptions) {
		o.embedder = embedder
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithProgressWriter enables progress reporting on batch runs.
func WithProgressWriter(w io.Writer) EngineOption {
	return func(o *engineOptions) {
		o.progressWriter = w
	}
}

// NewEngine opens the database at dbPath and the corpus rooted at corpusRoot.
func NewEngine(dbPath, corpusRoot string, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{
		config: ingest.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if err := options.config.Validate(); err != nil {
		return nil, err
	}

	store, err := blob.NewFSStore(corpusRoot, blob.WithLogger(options.logger))
	if err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(dbPath, false)
	if err != nil {
		return nil, err
	}

	embedder := options.embedder
	if embedder == nil {
		aiConfig := options.aiConfig
		if aiConfig == nil {
			aiConfig = ai.NewConfig(
				ai.WithModel(options.config.Model),
				ai.WithDimensions(options.config.Dimensions),
			)
		}
		embedder, err = openai.NewEmbedder(aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	return &Engine{
		backend:        backend,
		cache:          badger.NewCacheRepository(backend),
		batches:        badger.NewBatchRepository(backend),
		vectors:        badger.NewVectorRepository(backend),
		store:          store,
		embedder:       embedder,
		config:         options.config,
		logger:         options.logger,
		progressWriter: options.progressWriter,
	}, nil
}

// Close releases the repositories and the underlying backend.
func (e *Engine) Close() error {
	if err := e.vectors.Close(); err != nil {
		e.logger.Error("error closing vector repository", "err", err)
		return err
	}
	if err := e.batches.Close(); err != nil {
		e.logger.Error("error closing batch repository", "err", err)
		return err
	}
	if err := e.cache.Close(); err != nil {
		e.logger.Error("error closing cache repository", "err", err)
		return err
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (e *Engine) CacheRepository() storage.CacheRepository {
	return e.cache
}

func (e *Engine) BatchRepository() storage.BatchRepository {
	return e.batches
}

func (e *Engine) VectorRepository() storage.VectorRepository {
	return e.vectors
}

// Store returns the corpus listing.
func (e *Engine) Store() blob.Store {
	return e.store
}

// NewOrchestrator builds a batch orchestrator over the engine's components.
func (e *Engine) NewOrchestrator(opts ...ingest.OrchestratorOption) (*ingest.Orchestrator, error) {
	base := []ingest.OrchestratorOption{ingest.WithLogger(e.logger)}
	if e.progressWriter != nil {
		base = append(base, ingest.WithProgressWriter(e.progressWriter))
	}
	return ingest.NewOrchestrator(
		e.store, e.cache, e.batches, e.vectors, e.embedder, e.config,
		append(base, opts...)...,
	)
}

// NewSearcher builds a searcher over the engine's vector store and embedder.
func (e *Engine) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{search.WithLogger(e.logger)}
	return search.NewSearcher(e.vectors, e.embedder, append(base, opts...)...)
}

// Run executes one full ingestion batch against the corpus.
func (e *Engine) Run(ctx context.Context) (*core.BatchRecord, error) {
	orchestrator, err := e.NewOrchestrator()
	if err != nil {
		return nil, err
	}
	return orchestrator.Run(ctx)
}

// Resume picks up an interrupted batch by execution ID.
func (e *Engine) Resume(ctx context.Context, executionID string) (*core.BatchRecord, error) {
	orchestrator, err := e.NewOrchestrator()
	if err != nil {
		return nil, err
	}
	return orchestrator.Resume(ctx, executionID)
}

// Search returns the chunks most relevant to the query.
func (e *Engine) Search(ctx context.Context, query string, maxHits int) ([]*core.ChunkMatch, error) {
	searcher, err := e.NewSearcher()
	if err != nil {
		return nil, err
	}
	return searcher.Search(ctx, query, maxHits)
}

// Status reports the durable record and per-item results of an execution.
func (e *Engine) Status(ctx context.Context, executionID string) (*core.BatchRecord, []*core.ItemResult, error) {
	record, err := e.batches.GetBatch(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	results, err := e.batches.GetResults(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	return record, results, nil
}

// Purge drops every stored chunk along with the change cache, so the next run
// re-ingests the corpus from scratch.
func (e *Engine) Purge(ctx context.Context) error {
	if err := e.vectors.Purge(ctx); err != nil {
		return err
	}
	var uris []string
	err := e.cache.Scan(ctx, func(entry *core.CacheEntry) error {
		uris = append(uris, entry.URI)
		return nil
	})
	if err != nil {
		return err
	}
	for _, uri := range uris {
		if err := e.cache.Delete(ctx, uri); err != nil {
			return err
		}
	}
	e.logger.Info("purged vector store and change cache", "entries", len(uris))
	return nil
}
