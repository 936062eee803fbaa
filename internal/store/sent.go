package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SentStore remembers which events were already emitted so that a retried
// emission does not notify twice.
type SentStore struct {
	db *sql.DB
}

func NewSentStore(db *sql.DB) *SentStore {
	return &SentStore{db: db}
}

// RecordSent marks an event as emitted. It reports false when the event was
// already recorded.
func (s *SentStore) RecordSent(userID int64, kind, refID string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO sent_notifications (user_id, kind, reference_id) VALUES (?, ?, ?)`,
		userID, kind, refID,
	)
	if err != nil {
		return false, fmt.Errorf("record sent notification: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// WasSent checks if an event was already emitted.
func (s *SentStore) WasSent(userID int64, kind, refID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sent_notifications WHERE user_id = ? AND kind = ? AND reference_id = ?`,
		userID, kind, refID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sent notification: %w", err)
	}
	return count > 0, nil
}

// CleanupSent deletes records older than the given time and returns how many went.
func (s *SentStore) CleanupSent(before time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sent_notifications WHERE sent_at < ?`, before.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("cleanup sent notifications: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Forget removes a record so the event can be emitted again.
func (s *SentStore) Forget(userID int64, kind, refID string) error {
	_, err := s.db.Exec(
		`DELETE FROM sent_notifications WHERE user_id = ? AND kind = ? AND reference_id = ?`,
		userID, kind, refID,
	)
	if err != nil {
		return fmt.Errorf("forget sent notification: %w", err)
	}
	return nil
}
