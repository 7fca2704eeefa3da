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


// Package storage provides the storage abstraction layer for corpusflow.
//
// This package defines repository interfaces that decouple storage
// implementation from the ingestion engine. It allows different storage
// backends (BadgerDB, in-memory, etc.) to be used interchangeably.
//
// # Repositories
//
//   - CacheRepository: the change-detection cache mapping document URIs to
//     fingerprints and processing status, with a status secondary index
//   - BatchRepository: durable batch execution records and per-item results
//   - VectorRepository: the vector collection holding embedded chunks
//
// Public constructors in backend packages return these interfaces to
// prevent coupling to a specific backend:
//
//	cache, err := badger.NewCacheRepository(backend)  // storage.CacheRepository
//
// # Thread Safety
//
// All repository implementations must be thread-safe. The change cache in
// particular is written concurrently by every fan-out worker; per-URI writes
// are atomic and guarded by a version counter (compare-and-swap).
//
// # Context Support
//
// All repository methods accept context.Context for cancellation and
// timeout support.
package storage
