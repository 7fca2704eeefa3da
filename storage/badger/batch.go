package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/lodestone-ai/corpusflow/core"
	"github.com/lodestone-ai/corpusflow/storage"
)

// BatchRepository implements storage.BatchRepository for BadgerDB.
type BatchRepository struct {
	backend *Backend
}

var _ storage.BatchRepository = (*BatchRepository)(nil)

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(backend *Backend) *BatchRepository {
	return &BatchRepository{backend: backend}
}

// Close releases repository resources.
func (r *BatchRepository) Close() error {
	return nil
}

// SaveBatch persists a batch execution record, validating the stage
// transition against the stored record.
func (r *BatchRepository) SaveBatch(ctx context.Context, record *core.BatchRecord) error {
	if err := core.ValidateBatchRecord(record); err != nil {
		return err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readBatchRecord(tx, record.ExecutionID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Stage != record.Stage {
			if err := core.ValidateTransition(existing.Stage, record.Stage); err != nil {
				return err
			}
		}

		record.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeBatchRecordKey(record.ExecutionID), storage.MarshalBatchRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapConflict(err)
}

// GetBatch retrieves a batch record by execution ID.
func (r *BatchRepository) GetBatch(ctx context.Context, executionID string) (*core.BatchRecord, error) {
	var record *core.BatchRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = readBatchRecord(tx, executionID)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, storage.ErrNotFound
	}
	return record, nil
}

// SaveResult records the outcome for one manifest item, exactly once:
// the first recorded result for a URI wins and later calls are no-ops.
func (r *BatchRepository) SaveResult(ctx context.Context, executionID string, result *core.ItemResult) (bool, error) {
	if executionID == "" {
		return false, core.ErrEmptyExecutionID
	}
	if result == nil || result.URI == "" {
		return false, core.ErrEmptyURI
	}

	created := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeBatchResultKey(executionID, result.URI)
		_, err := tx.Get(key)
		if err == nil {
			return nil // already recorded
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := tx.Set(key, storage.MarshalItemResult(result)); err != nil {
			return err
		}
		created = true
		return tx.Commit()
	}, true)
	if err != nil {
		return false, mapConflict(err)
	}
	return created, nil
}

// GetResults retrieves all recorded results for an execution in URI order.
func (r *BatchRepository) GetResults(ctx context.Context, executionID string) ([]*core.ItemResult, error) {
	var results []*core.ItemResult
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeBatchResultPrefix(executionID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var result *core.ItemResult
			err := iter.Item().Value(func(val []byte) error {
				var err error
				result, err = storage.UnmarshalItemResult(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, result)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// readBatchRecord reads a batch record within a transaction.
// Returns nil, nil if no record exists.
func readBatchRecord(tx *badger.Txn, executionID string) (*core.BatchRecord, error) {
	item, err := tx.Get(makeBatchRecordKey(executionID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.BatchRecord
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalBatchRecord(val)
		return err
	})
	return record, err
}
