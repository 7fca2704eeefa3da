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
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lodestone-ai/corpusflow/ai"
	"github.com/lodestone-ai/corpusflow/blob"
	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
)

// Orchestrator owns the batch state machine. It is the single sequencer of a
// run: every stage transition is persisted before the next stage begins, so a
// crashed batch can be resumed from its durable record.
type Orchestrator struct {
	store      blob.Store
	cache      storage.CacheRepository
	batches    storage.BatchRepository
	vectors    storage.VectorRepository
	worker     Worker
	validator  *Validator
	bookkeeper *Bookkeeper
	fanout     *FanOut
	config     *Config
	logger     *slog.Logger

	progressWriter io.Writer
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// WithWorker replaces the default embedding worker.
func WithWorker(worker Worker) OrchestratorOption {
	return func(o *Orchestrator) {
		o.worker = worker
	}
}

// WithProgressWriter enables progress reporting during fan-out.
func WithProgressWriter(w io.Writer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.progressWriter = w
	}
}

// NewOrchestrator wires the full pipeline. The embedder may be nil when
// WithWorker supplies a custom worker.
func NewOrchestrator(
	store blob.Store,
	cache storage.CacheRepository,
	batches storage.BatchRepository,
	vectors storage.VectorRepository,
	embedder ai.Embedder,
	config *Config,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if cache == nil {
		return nil, ErrCacheRepositoryRequired
	}
	if batches == nil {
		return nil, ErrBatchRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:   store,
		cache:   cache,
		batches: batches,
		vectors: vectors,
		config:  config,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")

	if o.worker == nil {
		if embedder == nil {
			return nil, ErrEmbedderRequired
		}
		worker, err := NewEmbeddingWorker(store, vectors, embedder, config, o.logger)
		if err != nil {
			return nil, err
		}
		o.worker = worker
	}

	validator, err := NewValidator(cache, config, o.logger)
	if err != nil {
		return nil, err
	}
	o.validator = validator

	bookkeeper, err := NewBookkeeper(vectors, o.logger)
	if err != nil {
		return nil, err
	}
	o.bookkeeper = bookkeeper

	fanout, err := NewFanOut(o.worker, cache, batches, config, o.logger)
	if err != nil {
		return nil, err
	}
	if o.progressWriter != nil {
		fanout.SetProgressWriter(o.progressWriter)
	}
	o.fanout = fanout

	return o, nil
}

// Run executes one full batch: list the corpus, validate against the cache,
// ensure the vector collection, fan out, finalize. The returned record is
// terminal: Finalized on success, Aborted on systemic failure (in which case
// the error describes the cause).
func (o *Orchestrator) Run(ctx context.Context) (*core.BatchRecord, error) {
	executionID := uuid.NewString()
	now := time.Now().UTC()
	record := &core.BatchRecord{
		ExecutionID:  executionID,
		Stage:        core.StageValidating,
		ManifestPath: ManifestPath(o.config.ResultsDir, executionID),
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.batches.SaveBatch(ctx, record); err != nil {
		return nil, fmt.Errorf("persist batch record: %w", err)
	}
	o.logger.Info("batch started", "executionID", executionID)

	listing, err := o.store.List(ctx)
	if err != nil {
		return o.abort(ctx, record, fmt.Errorf("list corpus: %w", err))
	}

	validation, err := o.validator.Validate(ctx, listing, record.ManifestPath)
	if err != nil {
		return o.abort(ctx, record, fmt.Errorf("validation stage: %w", err))
	}

	if err := o.transition(ctx, record, core.StageBookkeeping); err != nil {
		return o.abort(ctx, record, err)
	}
	if err := o.bookkeeper.Ensure(ctx, o.schema()); err != nil {
		return o.abort(ctx, record, err)
	}

	if !validation.Valid {
		return o.abort(ctx, record, ErrManifestInvalid)
	}

	if len(validation.Items) == 0 {
		o.logger.Info("corpus unchanged, nothing to process", "executionID", executionID)
		return o.finalize(ctx, record)
	}

	if err := o.transition(ctx, record, core.StageFanningOut); err != nil {
		return o.abort(ctx, record, err)
	}
	if err := o.runFanOut(ctx, record, validation.Items); err != nil {
		return o.abort(ctx, record, err)
	}

	return o.finalize(ctx, record)
}

// Resume picks up an interrupted batch: it re-reads the durable record and
// the results recorded so far, and dispatches only the manifest items that
// have no result yet.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) (*core.BatchRecord, error) {
	record, err := o.batches.GetBatch(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", executionID, err)
	}
	if record.Stage.Terminal() {
		return record, fmt.Errorf("%w: %s is %s", ErrBatchTerminal, executionID, record.Stage)
	}

	items, err := ReadManifest(record.ManifestPath)
	if err != nil {
		// Interrupted before the manifest was durably written; this batch
		// cannot be resumed, only replaced by a fresh run.
		return o.abort(ctx, record, fmt.Errorf("read manifest: %w", err))
	}

	done := make(map[string]bool)
	results, err := o.batches.GetResults(ctx, executionID)
	if err != nil {
		return o.abort(ctx, record, fmt.Errorf("load recorded results: %w", err))
	}
	for _, result := range results {
		done[result.URI] = true
	}

	remainder := make([]core.ManifestItem, 0, len(items))
	for _, item := range items {
		if !done[item.URI] {
			remainder = append(remainder, item)
		}
	}
	o.logger.Info("resuming batch",
		"executionID", executionID,
		"manifestItems", len(items),
		"alreadyRecorded", len(done),
		"remaining", len(remainder))

	if err := o.bookkeeper.Ensure(ctx, o.schema()); err != nil {
		return o.abort(ctx, record, err)
	}

	if len(remainder) == 0 {
		return o.finalize(ctx, record)
	}

	if record.Stage != core.StageFanningOut {
		if err := o.transition(ctx, record, core.StageFanningOut); err != nil {
			return o.abort(ctx, record, err)
		}
	}
	if err := o.runFanOut(ctx, record, remainder); err != nil {
		return o.abort(ctx, record, err)
	}

	return o.finalize(ctx, record)
}

// runFanOut processes items and verifies the result set is complete.
func (o *Orchestrator) runFanOut(ctx context.Context, record *core.BatchRecord, items []core.ManifestItem) error {
	resultPath := ResultPath(o.config.ResultsDir, record.ExecutionID)
	writer, err := NewResultWriter(resultPath)
	if err != nil {
		return err
	}

	processErr := o.fanout.Process(ctx, record.ExecutionID, items, writer)
	if closeErr := writer.Close(); closeErr != nil && processErr == nil {
		processErr = closeErr
	}
	if processErr != nil {
		return processErr
	}

	// Every manifest item must have a recorded result before finalization.
	manifest, err := ReadManifest(record.ManifestPath)
	if err != nil {
		return fmt.Errorf("re-read manifest: %w", err)
	}
	results, err := o.batches.GetResults(ctx, record.ExecutionID)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	if len(results) != len(manifest) {
		return fmt.Errorf("result set incomplete: %d results for %d manifest items", len(results), len(manifest))
	}
	return nil
}

func (o *Orchestrator) schema() core.SchemaDescriptor {
	return core.SchemaDescriptor{
		Collection: o.config.Collection,
		Dimensions: o.config.Dimensions,
		Model:      o.config.Model,
	}
}

// transition advances the durable record to the next stage.
func (o *Orchestrator) transition(ctx context.Context, record *core.BatchRecord, stage core.Stage) error {
	record.Stage = stage
	record.UpdatedAt = time.Now().UTC()
	if err := o.batches.SaveBatch(ctx, record); err != nil {
		return fmt.Errorf("persist %s transition: %w", stage, err)
	}
	o.logger.Info("stage transition", "executionID", record.ExecutionID, "stage", stage.String())
	return nil
}

// finalize stamps the result path and moves the record to its success
// terminal. The result file is rewritten from the recorded result set: the
// incremental appends during fan-out are best-effort (a crash between
// recording a result and appending its line loses the line), so the durable
// record set is what the final file must mirror. An empty batch still gets
// an empty result file so the manifest/result bijection holds.
func (o *Orchestrator) finalize(ctx context.Context, record *core.BatchRecord) (*core.BatchRecord, error) {
	resultPath := ResultPath(o.config.ResultsDir, record.ExecutionID)
	results, err := o.batches.GetResults(ctx, record.ExecutionID)
	if err != nil {
		return o.abort(ctx, record, fmt.Errorf("load recorded results: %w", err))
	}
	if err := WriteResults(resultPath, results); err != nil {
		return o.abort(ctx, record, err)
	}

	record.Stage = core.StageFinalized
	record.ResultPath = resultPath
	record.UpdatedAt = time.Now().UTC()
	if err := o.batches.SaveBatch(ctx, record); err != nil {
		return nil, fmt.Errorf("persist finalization: %w", err)
	}
	o.logger.Info("batch finalized", "executionID", record.ExecutionID, "resultPath", resultPath)
	return record, nil
}

// abort moves the record to the failure terminal and surfaces the cause.
// Persistence uses a detached context so an operator cancel still records
// the aborted stage.
func (o *Orchestrator) abort(ctx context.Context, record *core.BatchRecord, cause error) (*core.BatchRecord, error) {
	record.Stage = core.StageAborted
	record.UpdatedAt = time.Now().UTC()
	if err := o.batches.SaveBatch(context.WithoutCancel(ctx), record); err != nil {
		o.logger.Error("failed to persist abort", "executionID", record.ExecutionID, "err", err)
	}
	o.logger.Error("batch aborted", "executionID", record.ExecutionID, "err", cause)
	return record, cause
}
