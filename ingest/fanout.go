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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
)

// FanOut processes a batch manifest through a bounded worker pool. At no
// point are more than Ceiling items in flight. Per-item failures become
// failed results; only infrastructure failures (the pool, the result store)
// are systemic.
type FanOut struct {
	worker         Worker
	cache          storage.CacheRepository
	batches        storage.BatchRepository
	config         *Config
	logger         *slog.Logger
	progressWriter io.Writer
}

// NewFanOut creates a fan-out processor.
func NewFanOut(
	worker Worker,
	cache storage.CacheRepository,
	batches storage.BatchRepository,
	config *Config,
	logger *slog.Logger,
) (*FanOut, error) {
	if worker == nil {
		return nil, errors.New("worker required")
	}
	if cache == nil {
		return nil, ErrCacheRepositoryRequired
	}
	if batches == nil {
		return nil, ErrBatchRepositoryRequired
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
	return &FanOut{
		worker:  worker,
		cache:   cache,
		batches: batches,
		config:  config,
		logger:  logger.With("component", "fanout"),
	}, nil
}

// SetProgressWriter enables progress reporting to w (typically os.Stderr).
func (f *FanOut) SetProgressWriter(w io.Writer) {
	f.progressWriter = w
}

// Process dispatches every item through the pool and records exactly one
// result per item, in badger and appended to the result writer.
//
// Cancelling ctx stops dispatch; items already in flight finish their current
// attempt and record their results before Process returns ctx's error.
func (f *FanOut) Process(ctx context.Context, executionID string, items []core.ManifestItem, results *ResultWriter) error {
	pool, err := ants.NewPool(f.config.Ceiling)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var tracker *ProgressTracker
	if f.progressWriter != nil {
		tracker = NewProgressTracker(f.progressWriter, len(items), 1)
		tracker.Start()
		defer tracker.Finish()
	}

	var (
		wg          sync.WaitGroup
		systemicMu  sync.Mutex
		systemicErr error
	)
	systemic := func(err error) {
		systemicMu.Lock()
		if systemicErr == nil {
			systemicErr = err
		}
		systemicMu.Unlock()
	}

	// In-flight items survive a cancelled batch: they finish and record.
	// Only dispatch observes ctx.
	itemCtx := context.WithoutCancel(ctx)

dispatch:
	for _, item := range items {
		item := item
		select {
		case <-ctx.Done():
			f.logger.Info("dispatch stopped", "executionID", executionID, "reason", ctx.Err())
			break dispatch
		default:
		}

		systemicMu.Lock()
		failed := systemicErr != nil
		systemicMu.Unlock()
		if failed {
			break
		}

		wg.Add(1)
		// Submit blocks while the pool is at capacity, bounding in-flight
		// items to the ceiling.
		if err := pool.Submit(func() {
			defer wg.Done()
			if err := f.processItem(itemCtx, executionID, item, results, tracker); err != nil {
				systemic(err)
			}
		}); err != nil {
			wg.Done()
			systemic(fmt.Errorf("submit item %s: %w", item.URI, err))
			break
		}
	}

	wg.Wait()

	if systemicErr != nil {
		return systemicErr
	}
	return ctx.Err()
}

// processItem runs one manifest item to a recorded result. Returns an error
// only for systemic failures; item failures are captured in the result.
func (f *FanOut) processItem(ctx context.Context, executionID string, item core.ManifestItem, results *ResultWriter, tracker *ProgressTracker) error {
	logger := f.logger.With("uri", item.URI, "executionID", executionID)

	if item.Action == core.ActionUpsert {
		if err := f.setStatus(ctx, item.URI, core.StatusProcessing); err != nil {
			return fmt.Errorf("mark %s processing: %w", item.URI, err)
		}
	}

	var units int
	attempts, err := RetryWithBackoff(ctx, func() error {
		// Each attempt gets a fresh timeout budget; a slow earlier attempt
		// must not starve its retries.
		attemptCtx := ctx
		if f.config.ItemTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, f.config.ItemTimeout)
			defer cancel()
		}
		n, opErr := f.worker.Process(attemptCtx, item)
		if opErr == nil {
			units = n
		}
		return opErr
	}, f.config.MaxAttempts, f.config.RetryBaseDelay)

	result := &core.ItemResult{
		URI:           item.URI,
		UnitsProduced: units,
		Attempts:      attempts,
	}
	switch {
	case err == nil:
		result.Outcome = core.OutcomeSucceeded
	case errors.Is(err, ErrUnsupportedContentType):
		result.Outcome = core.OutcomeSkipped
		result.Error = err.Error()
	default:
		result.Outcome = core.OutcomeFailed
		result.Error = err.Error()
	}

	created, err := f.batches.SaveResult(ctx, executionID, result)
	if err != nil {
		return fmt.Errorf("record result for %s: %w", item.URI, err)
	}
	if !created {
		// A previous run already recorded this item; its cache transition
		// happened then too.
		logger.Debug("result already recorded, skipping")
		return nil
	}

	if err := results.Append(result); err != nil {
		return fmt.Errorf("append result for %s: %w", item.URI, err)
	}
	if tracker != nil {
		tracker.Increment(1)
	}

	if err := f.applyCacheTransition(ctx, item, result); err != nil {
		return err
	}

	logger.Debug("item processed", "outcome", result.Outcome.String(), "units", result.UnitsProduced, "attempts", result.Attempts)
	return nil
}

// applyCacheTransition moves the cache entry to its post-result state.
func (f *FanOut) applyCacheTransition(ctx context.Context, item core.ManifestItem, result *core.ItemResult) error {
	if item.Action == core.ActionDelete {
		if result.Outcome != core.OutcomeSucceeded {
			return nil
		}
		err := f.cache.Delete(ctx, item.URI)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("drop cache entry for %s: %w", item.URI, err)
		}
		return nil
	}

	status := core.StatusFailed
	if result.Outcome == core.OutcomeSucceeded || result.Outcome == core.OutcomeSkipped {
		// Skipped items are settled: retrying the same content cannot help.
		status = core.StatusComplete
	}
	if err := f.setStatus(ctx, item.URI, status); err != nil {
		return fmt.Errorf("mark %s %s: %w", item.URI, status, err)
	}
	return nil
}

// setStatus applies a status transition with CAS re-read retries. A missing
// entry is not an error: the document may have been dropped by a concurrent
// batch.
func (f *FanOut) setStatus(ctx context.Context, uri string, status core.Status) error {
	for {
		entry, err := f.cache.Get(ctx, uri)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = f.cache.SetStatus(ctx, uri, entry.Version, status)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
}
