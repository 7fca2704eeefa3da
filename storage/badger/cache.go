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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
)

// CacheRepository implements storage.CacheRepository for BadgerDB.
//
// Each entry is stored under a primary key plus one status index key, both
// written in the same transaction so a failed write never leaves a partially
// updated entry. BadgerDB's SSI transactions serialize concurrent writes to
// the same URI; a commit that loses such a race surfaces as
// storage.ErrVersionConflict and the caller re-reads and retries.
type CacheRepository struct {
	backend *Backend
}

var _ storage.CacheRepository = (*CacheRepository)(nil)

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(backend *Backend) *CacheRepository {
	return &CacheRepository{backend: backend}
}

// Close releases repository resources.
func (r *CacheRepository) Close() error {
	return nil
}

// Get retrieves the cache entry for a URI.
func (r *CacheRepository) Get(ctx context.Context, uri string) (*core.CacheEntry, error) {
	var entry *core.CacheEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		entry, err = readCacheEntry(tx, uri)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, storage.ErrNotFound
	}
	return entry, nil
}

// Upsert records the current fingerprint of a listed corpus object.
func (r *CacheRepository) Upsert(ctx context.Context, uri, fingerprint, contentType string, size int64) (*core.CacheEntry, error) {
	var entry *core.CacheEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readCacheEntry(tx, uri)
		if err != nil {
			return err
		}

		if existing != nil && existing.Fingerprint == fingerprint &&
			existing.Status != core.StatusDeleted {
			// Unchanged content: nothing to reprocess. Entries that are
			// still pending or failed keep their stored status so the next
			// validation picks them up again. A deleted entry whose object
			// reappeared falls through and is resurrected as pending.
			entry = existing
			return nil
		}

		next := &core.CacheEntry{
			URI:         uri,
			Fingerprint: fingerprint,
			ContentType: contentType,
			Size:        size,
			Status:      core.StatusPending,
			UpdatedAt:   time.Now().UTC(),
		}
		if existing != nil {
			next.Version = existing.Version + 1
			next.IngestedAt = existing.IngestedAt
		} else {
			next.Version = 1
		}

		if err := core.ValidateCacheEntry(next); err != nil {
			return err
		}
		if err := writeCacheEntry(tx, existing, next); err != nil {
			return err
		}
		entry = next
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, mapConflict(err)
	}
	return entry, nil
}

// MarkDeleted transitions an entry to StatusDeleted.
func (r *CacheRepository) MarkDeleted(ctx context.Context, uri string) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readCacheEntry(tx, uri)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		if existing.Status == core.StatusDeleted {
			return nil
		}

		next := *existing
		next.Status = core.StatusDeleted
		next.Version = existing.Version + 1
		next.UpdatedAt = time.Now().UTC()

		if err := writeCacheEntry(tx, existing, &next); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapConflict(err)
}

// SetStatus transitions an entry's status using compare-and-swap on Version.
func (r *CacheRepository) SetStatus(ctx context.Context, uri string, version uint64, status core.Status) (*core.CacheEntry, error) {
	if err := core.ValidateStatus(status); err != nil {
		return nil, err
	}

	var entry *core.CacheEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readCacheEntry(tx, uri)
		if err != nil {
			return err
		}
		if existing == nil {
			return storage.ErrNotFound
		}
		if existing.Version != version {
			return storage.ErrVersionConflict
		}

		next := *existing
		next.Status = status
		next.Version = existing.Version + 1
		next.UpdatedAt = time.Now().UTC()
		if status == core.StatusComplete {
			next.IngestedAt = next.UpdatedAt
		}

		if err := writeCacheEntry(tx, existing, &next); err != nil {
			return err
		}
		entry = &next
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, mapConflict(err)
	}
	return entry, nil
}

// Delete removes an entry entirely.
func (r *CacheRepository) Delete(ctx context.Context, uri string) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readCacheEntry(tx, uri)
		if err != nil {
			return err
		}
		if existing == nil {
			return storage.ErrNotFound
		}

		if err := tx.Delete(makeCacheEntryKey(uri)); err != nil {
			return err
		}
		if err := tx.Delete(makeCacheStatusKey(existing.Status, uri)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapConflict(err)
}

// ScanByStatus iterates entries with the given status in URI order.
func (r *CacheRepository) ScanByStatus(ctx context.Context, status core.Status, fn func(*core.CacheEntry) error) error {
	if err := core.ValidateStatus(status); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeCacheStatusPrefix(status)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		prefixLen := len(opts.Prefix)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			uri := string(iter.Item().Key()[prefixLen:])
			entry, err := readCacheEntry(tx, uri)
			if err != nil {
				return err
			}
			if entry == nil || entry.Status != status {
				// Index key from an interleaved write; the primary record wins.
				continue
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// Scan iterates all entries in URI order.
func (r *CacheRepository) Scan(ctx context.Context, fn func(*core.CacheEntry) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(cacheEntryPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var entry *core.CacheEntry
			err := iter.Item().Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalCacheEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// readCacheEntry reads a cache entry within a transaction.
// Returns nil, nil if no entry exists.
func readCacheEntry(tx *badger.Txn, uri string) (*core.CacheEntry, error) {
	item, err := tx.Get(makeCacheEntryKey(uri))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var entry *core.CacheEntry
	err = item.Value(func(val []byte) error {
		var err error
		entry, err = storage.UnmarshalCacheEntry(val)
		return err
	})
	return entry, err
}

// writeCacheEntry stores a cache entry and moves its status index key.
// Both writes happen in the caller's transaction, so the update is atomic.
func writeCacheEntry(tx *badger.Txn, old, next *core.CacheEntry) error {
	if err := tx.Set(makeCacheEntryKey(next.URI), storage.MarshalCacheEntry(next)); err != nil {
		return err
	}
	if old != nil && old.Status != next.Status {
		if err := tx.Delete(makeCacheStatusKey(old.Status, old.URI)); err != nil {
			return err
		}
	}
	return tx.Set(makeCacheStatusKey(next.Status, next.URI), nil)
}

// mapConflict maps BadgerDB's transaction conflict to the storage sentinel
// so callers see one CAS failure mode.
func mapConflict(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrVersionConflict
	}
	return err
}
