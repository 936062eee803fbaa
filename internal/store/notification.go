package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/notifly/internal/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, user_id, kind, title, text, details, url, reference_id, read, created_at`

func scanNotification(scanner interface{ Scan(...any) error }) (*model.Notification, error) {
	var n model.Notification
	var read int
	err := scanner.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Text, &n.Details, &n.URL, &n.ReferenceID, &read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.Read = read != 0
	return &n, nil
}

func (s *NotificationStore) Create(userID int64, kind, title, text, details, url, refID string) (*model.Notification, error) {
	result, err := s.db.Exec(
		`INSERT INTO notifications (user_id, kind, title, text, details, url, reference_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, kind, title, text, details, url, refID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id, userID)
}

func (s *NotificationStore) GetByID(id, userID int64) (*model.Notification, error) {
	row := s.db.QueryRow(`SELECT `+notificationCols+` FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// List returns one page of the user's notifications, newest first.
func (s *NotificationStore) List(userID int64, page, pageSize int) (*model.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var total, unread int
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0)
		 FROM notifications WHERE user_id = ?`,
		userID,
	).Scan(&total, &unread)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT `+notificationCols+` FROM notifications WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &model.NotificationPage{
		Items:       items,
		UnreadCount: unread,
		Pagination: model.Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (total + pageSize - 1) / pageSize,
		},
	}, nil
}

func (s *NotificationStore) UnreadCount(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one notification read. It reports whether the notification
// exists for the user; marking an already read notification succeeds.
func (s *NotificationStore) MarkRead(id, userID int64) (bool, error) {
	result, err := s.db.Exec(`UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *NotificationStore) MarkAllRead(userID int64) (int64, error) {
	result, err := s.db.Exec(`UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (s *NotificationStore) Delete(id, userID int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete notification: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *NotificationStore) DeleteAllRead(userID int64) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM notifications WHERE user_id = ? AND read = 1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
