package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/notifly/internal/preference"
)

type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Load returns every channel preference of the user. Channels without a
// row come back at their unverified default.
func (s *PreferenceStore) Load(userID int64) (preference.Preferences, error) {
	rows, err := s.db.Query(
		`SELECT channel, contact, verified, enabled, categories
		 FROM channel_preferences WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	defer rows.Close()

	prefs := preference.Defaults()
	for rows.Next() {
		var (
			ch                string
			cp                preference.ChannelPreference
			verified, enabled int
			categories        string
		)
		if err := rows.Scan(&ch, &cp.Contact, &verified, &enabled, &categories); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		cp.Channel = preference.Channel(ch)
		if !cp.Channel.Valid() {
			continue
		}
		cp.Verified = verified != 0
		cp.Enabled = enabled != 0

		cats := preference.Default(cp.Channel).Categories
		var stored map[preference.Category]bool
		if err := json.Unmarshal([]byte(categories), &stored); err != nil {
			return nil, fmt.Errorf("decode categories for %s: %w", ch, err)
		}
		for c, on := range stored {
			if c.Valid() {
				cats[c] = on
			}
		}
		cp.Categories = cats
		prefs[cp.Channel] = cp
	}
	return prefs, rows.Err()
}

// Save writes every channel in prefs in one transaction. Preferences that
// break the verification invariant are rejected before anything is written.
func (s *PreferenceStore) Save(userID int64, prefs preference.Preferences) error {
	if err := preference.Validate(prefs); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ch := range preference.Channels {
		cp, ok := prefs[ch]
		if !ok {
			continue
		}
		cats := cp.Categories
		if cats == nil {
			cats = map[preference.Category]bool{}
		}
		data, err := json.Marshal(cats)
		if err != nil {
			return fmt.Errorf("encode categories: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO channel_preferences (user_id, channel, contact, verified, enabled, categories)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id, channel) DO UPDATE SET
			   contact = excluded.contact,
			   verified = excluded.verified,
			   enabled = excluded.enabled,
			   categories = excluded.categories,
			   updated_at = CURRENT_TIMESTAMP`,
			userID, string(ch), cp.Contact, boolInt(cp.Verified), boolInt(cp.Enabled), string(data),
		); err != nil {
			return fmt.Errorf("save %s preference: %w", ch, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
