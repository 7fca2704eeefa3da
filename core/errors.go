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

import "errors"

// Domain validation errors
var (
	// ErrInvalidCacheEntry indicates a CacheEntry failed validation.
	ErrInvalidCacheEntry = errors.New("invalid cache entry")

	// ErrInvalidManifestItem indicates a ManifestItem failed validation.
	ErrInvalidManifestItem = errors.New("invalid manifest item")

	// ErrInvalidBatchRecord indicates a BatchRecord failed validation.
	ErrInvalidBatchRecord = errors.New("invalid batch record")

	// ErrEmptyURI indicates the URI field is empty.
	ErrEmptyURI = errors.New("uri cannot be empty")

	// ErrEmptyFingerprint indicates the fingerprint field is empty.
	ErrEmptyFingerprint = errors.New("fingerprint cannot be empty")

	// ErrEmptyExecutionID indicates the execution ID field is empty.
	ErrEmptyExecutionID = errors.New("execution id cannot be empty")

	// ErrInvalidStatus indicates an invalid Status value.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidAction indicates an invalid Action value.
	ErrInvalidAction = errors.New("invalid action")

	// ErrInvalidStage indicates an invalid Stage value.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrInvalidOutcome indicates an invalid Outcome value.
	ErrInvalidOutcome = errors.New("invalid outcome")

	// ErrStageRegression indicates an attempt to move a batch stage backward.
	ErrStageRegression = errors.New("stage cannot move backward")
)
