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


package core

import "fmt"

// ValidateCacheEntry validates a CacheEntry according to domain rules.
//
// Validation rules:
//   - URI must not be empty
//   - Fingerprint must not be empty unless the entry is marked deleted
//   - Status must be a known value
//
// NOT validated:
//   - Version (0 is valid for entries that have never been written)
//   - IngestedAt (zero until the entry first completes)
func ValidateCacheEntry(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidCacheEntry)
	}

	if entry.URI == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCacheEntry, ErrEmptyURI)
	}

	if entry.Fingerprint == "" && entry.Status != StatusDeleted {
		return fmt.Errorf("%w: %w", ErrInvalidCacheEntry, ErrEmptyFingerprint)
	}

	if err := ValidateStatus(entry.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCacheEntry, err)
	}

	return nil
}

// ValidateManifestItem validates a ManifestItem according to domain rules.
func ValidateManifestItem(item *ManifestItem) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidManifestItem)
	}

	if item.URI == "" {
		return fmt.Errorf("%w: %w", ErrInvalidManifestItem, ErrEmptyURI)
	}

	if item.Action != ActionUpsert && item.Action != ActionDelete {
		return fmt.Errorf("%w: %w", ErrInvalidManifestItem, ErrInvalidAction)
	}

	if item.Action == ActionUpsert && item.Fingerprint == "" {
		return fmt.Errorf("%w: %w", ErrInvalidManifestItem, ErrEmptyFingerprint)
	}

	return nil
}

// ValidateBatchRecord validates a BatchRecord according to domain rules.
//
// The result path may only be populated once the batch is finalized.
func ValidateBatchRecord(record *BatchRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidBatchRecord)
	}

	if record.ExecutionID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidBatchRecord, ErrEmptyExecutionID)
	}

	if err := ValidateStage(record.Stage); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBatchRecord, err)
	}

	if record.ResultPath != "" && record.Stage != StageFinalized {
		return fmt.Errorf("%w: result path set before finalization", ErrInvalidBatchRecord)
	}

	return nil
}

// ValidateStatus validates that a Status has a known value.
func ValidateStatus(status Status) error {
	if _, ok := statusNames[status]; !ok {
		return fmt.Errorf("%w: value %d", ErrInvalidStatus, status)
	}
	return nil
}

// ValidateStage validates that a Stage has a known value.
func ValidateStage(stage Stage) error {
	if _, ok := stageNames[stage]; !ok {
		return fmt.Errorf("%w: value %d", ErrInvalidStage, stage)
	}
	return nil
}

// ValidateTransition checks that a stage transition is legal: stages advance
// strictly forward, except that Aborted is reachable from any non-terminal
// stage.
func ValidateTransition(from, to Stage) error {
	if err := ValidateStage(from); err != nil {
		return err
	}
	if err := ValidateStage(to); err != nil {
		return err
	}

	if from.Terminal() {
		return fmt.Errorf("%w: batch already %s", ErrStageRegression, from)
	}
	if to == StageAborted {
		return nil
	}
	if to <= from {
		return fmt.Errorf("%w: %s -> %s", ErrStageRegression, from, to)
	}
	return nil
}
