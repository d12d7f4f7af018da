package bolt

import (
	"context"
	"fmt"
	"sort"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/rs/zerolog/log"
	bbolt "go.etcd.io/bbolt"
)

// HistoryStore implements port.HistoryLog. Entries are keyed by attempt
// id, which makes Append idempotent per call attempt: when the two
// sides of a withdrawn call race to log it, the first terminal write
// wins and the loser's entry is dropped.
type HistoryStore struct {
	db *DB
}

func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (h *HistoryStore) Append(ctx context.Context, entry domain.CallHistoryEntry) error {
	if entry.AttemptID == "" {
		return fmt.Errorf("call history entry has no attempt id")
	}
	return h.db.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketCallHistory))
		key := []byte(entry.AttemptID)
		if bucket.Get(key) != nil {
			log.Debug().Str("attempt", entry.AttemptID).Str("outcome", string(entry.Status)).Msg("Attempt already logged, dropping duplicate")
			return nil
		}
		raw, err := encode(entry)
		if err != nil {
			return err
		}
		return bucket.Put(key, raw)
	})
}

// ByParticipant returns the account's call history, most recent first.
func (h *HistoryStore) ByParticipant(ctx context.Context, id domain.AccountID) ([]domain.CallHistoryEntry, error) {
	var entries []domain.CallHistoryEntry
	err := h.db.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketCallHistory)).ForEach(func(_, raw []byte) error {
			var entry domain.CallHistoryEntry
			if err := decode(raw, &entry); err != nil {
				return err
			}
			if entry.Involves(id) {
				entries = append(entries, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan call history: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StartTime.After(entries[j].StartTime) })
	return entries, nil
}
