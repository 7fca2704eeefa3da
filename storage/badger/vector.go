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

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Chunks are stored under keys composed of source URI and position, so all
// chunks of one document share a prefix and delete-by-source is a prefix
// scan. Similarity search is a full scan with dot-product scoring; vectors
// are expected to be normalized so the dot product is cosine similarity.
type VectorRepository struct {
	backend *Backend
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) *VectorRepository {
	return &VectorRepository{backend: backend}
}

// Close releases repository resources.
func (r *VectorRepository) Close() error {
	return nil
}

// EnsureCollection prepares the vector collection. Idempotent.
func (r *VectorRepository) EnsureCollection(ctx context.Context, desc core.SchemaDescriptor) error {
	if desc.Collection == "" {
		return fmt.Errorf("%w: collection name required", storage.ErrCollectionMismatch)
	}
	if desc.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", storage.ErrCollectionMismatch)
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readSchemaDescriptor(tx)
		if err != nil {
			return err
		}
		if existing != nil {
			if *existing == desc {
				return nil
			}
			return fmt.Errorf("%w: have %s/%d/%s, want %s/%d/%s",
				storage.ErrCollectionMismatch,
				existing.Collection, existing.Dimensions, existing.Model,
				desc.Collection, desc.Dimensions, desc.Model)
		}

		if err := tx.Set([]byte(collectionMetaKey), storage.MarshalSchemaDescriptor(&desc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapConflict(err)
}

// UpsertChunks writes chunks into the collection.
func (r *VectorRepository) UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if chunk.SourceURI == "" {
				return core.ErrEmptyURI
			}
			key := makeChunkKey(chunk.SourceURI, chunk.Position)
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	return mapConflict(err)
}

// DeleteBySource removes all chunks originating from one source document.
func (r *VectorRepository) DeleteBySource(ctx context.Context, sourceURI string) (int, error) {
	if sourceURI == "" {
		return 0, core.ErrEmptyURI
	}

	// Collect keys first: badger iterators cannot outlive deletes on the
	// same transaction safely.
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkSourcePrefix(sourceURI)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, mapConflict(err)
	}
	return len(keys), nil
}

// CountBySource returns the number of stored chunks for a source document.
func (r *VectorRepository) CountBySource(ctx context.Context, sourceURI string) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkSourcePrefix(sourceURI)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// FindSimilar returns the chunks most similar to the given vector.
func (r *VectorRepository) FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.ChunkMatch, error) {
	var results []*core.ChunkMatch

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk == nil || len(chunk.Vector) == 0 {
				continue
			}

			results = append(results, &core.ChunkMatch{
				Chunk: chunk,
				Score: dotProduct(vector, chunk.Vector),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.ChunkMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Purge drops all chunks and the collection descriptor.
func (r *VectorRepository) Purge(ctx context.Context) error {
	if err := r.backend.DropPrefix([]byte(chunkPrefix + ":")); err != nil {
		return err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		err := tx.Delete([]byte(collectionMetaKey))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return tx.Commit()
	}, true)
	return mapConflict(err)
}

// readSchemaDescriptor reads the stored descriptor within a transaction.
// Returns nil, nil if the collection has not been created.
func readSchemaDescriptor(tx *badger.Txn) (*core.SchemaDescriptor, error) {
	item, err := tx.Get([]byte(collectionMetaKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var desc *core.SchemaDescriptor
	err = item.Value(func(val []byte) error {
		var err error
		desc, err = storage.UnmarshalSchemaDescriptor(val)
		return err
	})
	return desc, err
}

// dotProduct computes the dot product of two vectors.
// For normalized vectors this equals cosine similarity.
func dotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
