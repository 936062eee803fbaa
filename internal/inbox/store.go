// Package inbox keeps the client's copy of the user's notification list.
//
// Mutations are applied locally before the backend call is made and are not
// rolled back when that call fails; the next refresh reconciles with the
// backend. The unread count is always recomputed from the item list.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
)

// Item is one notification record as seen by the client.
type Item struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Details   string    `json:"details,omitempty"`
	URL       string    `json:"url,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Page is the backend's answer to a list request. UnreadCount covers every
// page, not just Items.
type Page struct {
	Items       []Item     `json:"items"`
	UnreadCount int        `json:"unread_count"`
	Pagination  Pagination `json:"pagination"`
}

// Backend is the notification half of the server contract. Every call is
// scoped to the authenticated user.
type Backend interface {
	ListNotifications(ctx context.Context, page, pageSize int) (Page, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id int64) error
	DeleteAllRead(ctx context.Context) error
}

// Snapshot is a copy of the store state for presentation.
type Snapshot struct {
	Items []Item `json:"items"`
	// UnreadCount is the number of unread entries in Items.
	UnreadCount int `json:"unread_count"`
	// TotalUnread counts unread notifications across all pages: the
	// backend's count for the pages not loaded plus the unread entries in
	// Items. It drives the badge.
	TotalUnread int        `json:"total_unread"`
	Pagination  Pagination `json:"pagination"`
	Loaded      bool       `json:"loaded"`
}

// MutationError reports a backend failure after the local change was applied.
type MutationError struct {
	Op  string
	ID  int64
	Err error
}

func (e *MutationError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %d: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// Store holds the notification list. All methods are safe for concurrent use.
// Local changes happen in call order under the store lock before any
// network call is made.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.Mutex
	items []Item
	// offPage is the backend's unread count minus the unread entries of the
	// loaded page, as of the last fetch or count refresh.
	offPage    int
	pagination Pagination
	loaded     bool
	page       int
	pageSize   int

	// gen increases with every local mutation and every fetch issued.
	gen uint64
	// touched and deleted record the generation of the last local
	// mark-read and delete per id.
	touched map[int64]uint64
	deleted map[int64]uint64
	// readAllGen and clearReadGen record the last bulk mutations.
	readAllGen   uint64
	clearReadGen uint64
	// applied is the generation of the newest fetch whose result was applied.
	applied uint64
	// mutated is the generation of the last local mutation.
	mutated uint64

	listenersMu sync.Mutex
	listeners   []func(Snapshot)
}

func NewStore(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend:  backend,
		logger:   logger,
		page:     DefaultPage,
		pageSize: DefaultPageSize,
		touched:  make(map[int64]uint64),
		deleted:  make(map[int64]uint64),
	}
}

// OnChange registers fn to be called with a snapshot after every state change.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	items := make([]Item, len(s.items))
	copy(items, s.items)
	return Snapshot{
		Items:       items,
		UnreadCount: countUnread(s.items),
		TotalUnread: s.offPage + countUnread(s.items),
		Pagination:  s.pagination,
		Loaded:      s.loaded,
	}
}

func (s *Store) notify() {
	snap := s.Snapshot()
	s.listenersMu.Lock()
	listeners := make([]func(Snapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func countUnread(items []Item) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}

// FetchList loads a page from the backend and replaces the local list with
// it. Local mutations made while the request was in flight are reapplied to
// the result so a late response cannot undo them.
func (s *Store) FetchList(ctx context.Context, page, pageSize int) (Snapshot, error) {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	s.mu.Lock()
	s.gen++
	issued := s.gen
	s.page, s.pageSize = page, pageSize
	s.mu.Unlock()

	res, err := s.backend.ListNotifications(ctx, page, pageSize)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("list notifications: %w", err)
	}

	s.mu.Lock()
	if issued < s.applied {
		// A newer fetch already landed.
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	s.items = s.reconcileLocked(res.Items, issued)
	s.offPage = nonNegative(res.UnreadCount - countUnread(res.Items))
	if s.readAllGen > issued {
		s.offPage = 0
	}
	s.pagination = res.Pagination
	s.loaded = true
	s.applied = issued
	for id, g := range s.touched {
		if g < issued {
			delete(s.touched, id)
		}
	}
	for id, g := range s.deleted {
		if g < issued {
			delete(s.deleted, id)
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify()
	return snap, nil
}

// reconcileLocked overlays local mutations made after the fetch was issued
// onto the fetched items. Matching is by id, never by position.
func (s *Store) reconcileLocked(fetched []Item, issued uint64) []Item {
	out := make([]Item, 0, len(fetched))
	for _, it := range fetched {
		if g, ok := s.deleted[it.ID]; ok && g > issued {
			continue
		}
		serverRead := it.Read
		// readGen is when the item became read locally, 0 if it did not.
		var readGen uint64
		if s.readAllGen > issued {
			it.Read = true
			readGen = s.readAllGen
		}
		if g, ok := s.touched[it.ID]; ok && g > issued {
			it.Read = true
			if readGen == 0 || g < readGen {
				readGen = g
			}
		}
		if s.clearReadGen > issued && (serverRead || (readGen != 0 && readGen < s.clearReadGen)) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Refresh re-fetches the page last requested.
func (s *Store) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	page, size := s.page, s.pageSize
	s.mu.Unlock()
	return s.FetchList(ctx, page, size)
}

// RefreshCount fetches only the backend's unread count. An answer to a
// request issued before a later local mutation or fetch is ignored.
func (s *Store) RefreshCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	issued := s.gen
	s.mu.Unlock()

	n, err := s.backend.UnreadCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	s.mu.Lock()
	if s.mutated > issued || s.applied > issued {
		s.mu.Unlock()
		return n, nil
	}
	before := s.offPage
	s.offPage = nonNegative(n - countUnread(s.items))
	changed := s.offPage != before
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return n, nil
}

// mutate applies fn to the local state under the lock, notifies listeners,
// then runs call. A failed call is logged and returned as *MutationError.
func (s *Store) mutate(ctx context.Context, op string, id int64, fn func(gen uint64), call func(context.Context) error) error {
	s.mu.Lock()
	s.gen++
	s.mutated = s.gen
	fn(s.gen)
	s.mu.Unlock()
	s.notify()

	if err := call(ctx); err != nil {
		s.logger.Warn("notification mutation failed", "op", op, "id", id, "error", err)
		return &MutationError{Op: op, ID: id, Err: err}
	}
	return nil
}

// MarkRead marks one notification read.
func (s *Store) MarkRead(ctx context.Context, id int64) error {
	return s.mutate(ctx, "mark read", id, func(gen uint64) {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i].Read = true
			}
		}
		s.touched[id] = gen
	}, func(ctx context.Context) error {
		return s.backend.MarkRead(ctx, id)
	})
}

// MarkAllRead marks every notification read.
func (s *Store) MarkAllRead(ctx context.Context) error {
	return s.mutate(ctx, "mark all read", 0, func(gen uint64) {
		for i := range s.items {
			s.items[i].Read = true
		}
		s.offPage = 0
		s.readAllGen = gen
	}, s.backend.MarkAllRead)
}

// Delete removes one notification.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.mutate(ctx, "delete", id, func(gen uint64) {
		s.items = removeWhere(s.items, func(it Item) bool { return it.ID == id })
		s.deleted[id] = gen
	}, func(ctx context.Context) error {
		return s.backend.DeleteNotification(ctx, id)
	})
}

// DeleteAllRead removes every read notification.
func (s *Store) DeleteAllRead(ctx context.Context) error {
	return s.mutate(ctx, "delete read", 0, func(gen uint64) {
		s.items = removeWhere(s.items, func(it Item) bool { return it.Read })
		s.clearReadGen = gen
	}, s.backend.DeleteAllRead)
}

func removeWhere(items []Item, drop func(Item) bool) []Item {
	out := items[:0]
	for _, it := range items {
		if !drop(it) {
			out = append(out, it)
		}
	}
	return out
}
