// -----------------------------------------------------------------------
// History Storage - append-only status transition trail per job
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/interfaces"
	"github.com/lukisan/renderwatch/internal/models"
)

// HistoryStorage keeps transition records directly in Badger under
// timestamp-ordered keys, so a prefix scan returns a job's trail in write
// order without a secondary index.
//
// Key format: history:{jobID}:{unixnano}
type HistoryStorage struct {
	db     *badger.DB
	logger arbor.ILogger
}

// NewHistoryStorage creates a history store over the raw Badger handle.
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{
		db:     db.Store().Badger(),
		logger: logger,
	}
}

func historyKey(jobID string, at time.Time) []byte {
	return []byte(fmt.Sprintf("history:%s:%020d", jobID, at.UnixNano()))
}

func historyPrefix(jobID string) []byte {
	return []byte(fmt.Sprintf("history:%s:", jobID))
}

func (s *HistoryStorage) AppendTransition(ctx context.Context, record *models.StatusTransition) error {
	if record.JobID == "" {
		return fmt.Errorf("transition record requires a job id")
	}
	if record.At.IsZero() {
		record.At = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal transition record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(record.JobID, record.At), data)
	})
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

func (s *HistoryStorage) ListTransitions(ctx context.Context, jobID string, limit int) ([]*models.StatusTransition, error) {
	var records []*models.StatusTransition

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := historyPrefix(jobID)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var record models.StatusTransition
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, &record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}

	return records, nil
}

func (s *HistoryStorage) DeleteTransitions(ctx context.Context, jobID string) error {
	prefix := historyPrefix(jobID)

	// Collect keys first; deleting while iterating invalidates the iterator
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan transitions: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete transitions: %w", err)
	}
	return nil
}
