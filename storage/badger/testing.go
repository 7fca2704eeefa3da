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


package badger

import "github.com/lodestone-ai/corpusflow/storage"

// NewMemoryRepositories creates in-memory cache, batch, and vector
// repositories for testing. Returns the repositories plus the backend;
// the caller must close the backend when done.
func NewMemoryRepositories() (storage.CacheRepository, storage.BatchRepository, storage.VectorRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	cache := NewCacheRepository(backend)
	batches := NewBatchRepository(backend)
	vectors := NewVectorRepository(backend)

	return cache, batches, vectors, backend, nil
}
