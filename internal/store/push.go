package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/notifly/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const pushCols = `id, user_id, device_id, endpoint, p256dh_key, auth_key, device_name, created_at, updated_at`

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := scanner.Scan(&sub.ID, &sub.UserID, &sub.DeviceID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SaveSubscription stores the subscription for a user's device, replacing
// whatever that device had before. An endpoint previously registered under
// another device or user moves to this one.
func (s *PushStore) SaveSubscription(userID int64, deviceID, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM push_subscriptions WHERE endpoint = ? AND NOT (user_id = ? AND device_id = ?)`,
		endpoint, userID, deviceID,
	); err != nil {
		return nil, fmt.Errorf("clear moved endpoint: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO push_subscriptions (user_id, device_id, endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, device_id) DO UPDATE SET
		   endpoint = excluded.endpoint,
		   p256dh_key = excluded.p256dh_key,
		   auth_key = excluded.auth_key,
		   device_name = excluded.device_name,
		   updated_at = CURRENT_TIMESTAMP`,
		userID, deviceID, endpoint, p256dh, auth, deviceName,
	); err != nil {
		return nil, fmt.Errorf("save push subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetByDevice(userID, deviceID)
}

func (s *PushStore) GetByDevice(userID int64, deviceID string) (*model.PushSubscription, error) {
	row := s.db.QueryRow(`SELECT `+pushCols+` FROM push_subscriptions WHERE user_id = ? AND device_id = ?`, userID, deviceID)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get push subscription: %w", err)
	}
	return sub, nil
}

// RemoveSubscription deletes the subscription of one device. It reports
// whether a row existed.
func (s *PushStore) RemoveSubscription(userID int64, deviceID string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE user_id = ? AND device_id = ?`, userID, deviceID)
	if err != nil {
		return false, fmt.Errorf("remove push subscription: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *PushStore) ListByUser(userID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT `+pushCols+` FROM push_subscriptions WHERE user_id = ? ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions by user: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
