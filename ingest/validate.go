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
	"log/slog"

	"github.com/lodestone-ai/corpusflow/blob"
	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
)

// ValidationResult is what the validation stage hands to the orchestrator.
type ValidationResult struct {
	// Items is the manifest: every document that needs action this batch,
	// ordered by URI. Empty means the corpus is fully ingested.
	Items []core.ManifestItem

	// Valid reports whether every manifest item passed validation. A batch
	// with an invalid manifest must not fan out.
	Valid bool
}

// Validator reconciles a corpus listing against the change cache and builds
// the batch manifest.
type Validator struct {
	cache  storage.CacheRepository
	config *Config
	logger *slog.Logger
}

// NewValidator creates a validation stage over the given cache.
func NewValidator(cache storage.CacheRepository, config *Config, logger *slog.Logger) (*Validator, error) {
	if cache == nil {
		return nil, ErrCacheRepositoryRequired
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
	return &Validator{cache: cache, config: config, logger: logger.With("component", "validator")}, nil
}

// Validate reconciles the listing with the cache, writes the manifest JSONL
// to manifestPath, and returns the manifest. The manifest is a pure function
// of cache state at this moment; corpus changes after this call belong to the
// next batch.
func (v *Validator) Validate(ctx context.Context, listing []blob.Object, manifestPath string) (*ValidationResult, error) {
	listed := make(map[string]bool, len(listing))

	// Every listed object of a supported type is upserted; a changed
	// fingerprint moves the entry back to pending.
	for _, obj := range listing {
		if !v.config.supportsType(obj.ContentType) {
			v.logger.Debug("skipping unsupported content type", "uri", obj.URI, "contentType", obj.ContentType)
			continue
		}
		listed[obj.URI] = true
		if _, err := v.cache.Upsert(ctx, obj.URI, obj.Fingerprint, obj.ContentType, obj.Size); err != nil {
			return nil, fmt.Errorf("upsert cache entry for %s: %w", obj.URI, err)
		}
	}

	// Cached URIs absent from the listing are gone from the corpus.
	var vanished []string
	err := v.cache.Scan(ctx, func(entry *core.CacheEntry) error {
		if !listed[entry.URI] && entry.Status != core.StatusDeleted {
			vanished = append(vanished, entry.URI)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cache: %w", err)
	}
	for _, uri := range vanished {
		if err := v.cache.MarkDeleted(ctx, uri); err != nil {
			return nil, fmt.Errorf("mark deleted %s: %w", uri, err)
		}
	}

	// Entries stranded in processing (a crashed batch) or failed (a previous
	// batch) get another chance this run.
	for _, status := range []core.Status{core.StatusProcessing, core.StatusFailed} {
		if err := v.resetToPending(ctx, status); err != nil {
			return nil, err
		}
	}

	result := &ValidationResult{Valid: true}
	err = v.cache.ScanByStatus(ctx, core.StatusPending, func(entry *core.CacheEntry) error {
		result.Items = append(result.Items, core.ManifestItem{
			URI:         entry.URI,
			Action:      core.ActionUpsert,
			Fingerprint: entry.Fingerprint,
			ContentType: entry.ContentType,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending entries: %w", err)
	}
	err = v.cache.ScanByStatus(ctx, core.StatusDeleted, func(entry *core.CacheEntry) error {
		result.Items = append(result.Items, core.ManifestItem{
			URI:         entry.URI,
			Action:      core.ActionDelete,
			Fingerprint: entry.Fingerprint,
			ContentType: entry.ContentType,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan deleted entries: %w", err)
	}

	for i := range result.Items {
		if err := core.ValidateManifestItem(&result.Items[i]); err != nil {
			v.logger.Error("manifest item failed validation", "uri", result.Items[i].URI, "err", err)
			result.Valid = false
		}
	}

	if err := WriteManifest(manifestPath, result.Items); err != nil {
		return nil, err
	}

	v.logger.Info("validation complete",
		"listed", len(listing),
		"manifestItems", len(result.Items),
		"deletions", len(vanished),
		"valid", result.Valid)
	return result, nil
}

// resetToPending moves every entry with the given status back to pending,
// retrying CAS conflicts against concurrent writers.
func (v *Validator) resetToPending(ctx context.Context, status core.Status) error {
	var uris []string
	err := v.cache.ScanByStatus(ctx, status, func(entry *core.CacheEntry) error {
		uris = append(uris, entry.URI)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s entries: %w", status, err)
	}

	for _, uri := range uris {
		for {
			entry, err := v.cache.Get(ctx, uri)
			if errors.Is(err, storage.ErrNotFound) {
				break
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", uri, err)
			}
			if entry.Status != status {
				break
			}
			_, err = v.cache.SetStatus(ctx, uri, entry.Version, core.StatusPending)
			if errors.Is(err, storage.ErrVersionConflict) {
				continue
			}
			if err != nil {
				return fmt.Errorf("reset %s to pending: %w", uri, err)
			}
			break
		}
	}
	return nil
}
