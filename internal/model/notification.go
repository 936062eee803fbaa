package model

import "time"

// Notification kinds.
const (
	KindOrder    = "order"
	KindPromo    = "promo"
	KindRecipe   = "recipe"
	KindSecurity = "security"
	KindSystem   = "system"
	KindTracking = "tracking"
	KindPopup    = "popup"
)

// ValidKind reports whether k is a known notification kind.
func ValidKind(k string) bool {
	switch k {
	case KindOrder, KindPromo, KindRecipe, KindSecurity, KindSystem, KindTracking, KindPopup:
		return true
	}
	return false
}

// CategoryForKind maps a kind to the preference category that governs it.
func CategoryForKind(k string) string {
	switch k {
	case KindOrder, KindTracking:
		return "order_updates"
	case KindPromo, KindPopup:
		return "promotions"
	case KindSecurity, KindSystem:
		return "security"
	case KindRecipe:
		return "new_content"
	}
	return ""
}

type Notification struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Details     string    `json:"details,omitempty"`
	URL         string    `json:"url,omitempty"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NotificationPage is one page of a user's notifications. UnreadCount
// covers all pages.
type NotificationPage struct {
	Items       []Notification `json:"items"`
	UnreadCount int            `json:"unread_count"`
	Pagination  Pagination     `json:"pagination"`
}

// Event asks the server to notify a user. Category defaults to the one
// derived from Kind. A non-empty ReferenceID makes emission idempotent.
type Event struct {
	UserID      int64  `json:"user_id"`
	Kind        string `json:"kind"`
	Category    string `json:"category,omitempty"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Details     string `json:"details,omitempty"`
	URL         string `json:"url,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
}
