package store

import (
	"fmt"
	"testing"
)

func setupNotificationTestDB(t *testing.T) (*NotificationStore, int64) {
	t.Helper()
	db := setupTestDB(t)
	return NewNotificationStore(db), createTestUser(t, db, "test@example.com")
}

func TestNotificationCreate(t *testing.T) {
	ns, uid := setupNotificationTestDB(t)

	n, err := ns.Create(uid, "order", "Order placed", "Your order #42 was placed", "", "/order_tracking", "order-42")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if n.Read {
		t.Error("expected new notification unread")
	}
	if n.Kind != "order" || n.URL != "/order_tracking" {
		t.Errorf("notification = %+v", n)
	}
	if n.CreatedAt.IsZero() {
		t.Error("expected created_at set")
	}
}

func TestNotificationListPaging(t *testing.T) {
	ns, uid := setupNotificationTestDB(t)
	for i := 1; i <= 5; i++ {
		ns.Create(uid, "promo", fmt.Sprintf("n%d", i), "", "", "", "")
	}

	page, err := ns.List(uid, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	if page.Items[0].Title != "n5" || page.Items[1].Title != "n4" {
		t.Errorf("order = %s, %s; want n5, n4", page.Items[0].Title, page.Items[1].Title)
	}
	if page.Pagination.Total != 5 || page.Pagination.TotalPages != 3 {
		t.Errorf("pagination = %+v", page.Pagination)
	}
	if page.UnreadCount != 5 {
		t.Errorf("unread = %d, want 5", page.UnreadCount)
	}

	last, _ := ns.List(uid, 3, 2)
	if len(last.Items) != 1 || last.Items[0].Title != "n1" {
		t.Errorf("last page = %+v", last.Items)
	}

	empty, _ := ns.List(uid, 9, 2)
	if empty.Items == nil || len(empty.Items) != 0 {
		t.Errorf("past the end = %#v, want empty non-nil slice", empty.Items)
	}
}

func TestNotificationScopedByUser(t *testing.T) {
	db := setupTestDB(t)
	ns := NewNotificationStore(db)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	n, _ := ns.Create(alice, "order", "for alice", "", "", "", "")

	if ok, _ := ns.MarkRead(n.ID, bob); ok {
		t.Error("bob must not mark alice's notification")
	}
	if ok, _ := ns.Delete(n.ID, bob); ok {
		t.Error("bob must not delete alice's notification")
	}
	got, _ := ns.GetByID(n.ID, bob)
	if got != nil {
		t.Error("bob must not read alice's notification")
	}
	page, _ := ns.List(bob, 1, 20)
	if len(page.Items) != 0 {
		t.Errorf("bob items = %d, want 0", len(page.Items))
	}
}

func TestNotificationMutations(t *testing.T) {
	ns, uid := setupNotificationTestDB(t)
	a, _ := ns.Create(uid, "order", "a", "", "", "", "")
	b, _ := ns.Create(uid, "promo", "b", "", "", "", "")
	ns.Create(uid, "recipe", "c", "", "", "", "")

	ok, err := ns.MarkRead(a.ID, uid)
	if err != nil || !ok {
		t.Fatalf("mark read = %v, %v", ok, err)
	}
	ok, _ = ns.MarkRead(a.ID, uid)
	if !ok {
		t.Error("marking an already read notification should still find it")
	}
	if n, _ := ns.UnreadCount(uid); n != 2 {
		t.Errorf("unread = %d, want 2", n)
	}

	if ok, _ := ns.Delete(b.ID, uid); !ok {
		t.Error("expected delete to find b")
	}
	if ok, _ := ns.Delete(b.ID, uid); ok {
		t.Error("expected second delete to find nothing")
	}

	n, err := ns.MarkAllRead(uid)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if n != 1 {
		t.Errorf("marked = %d, want 1", n)
	}

	n, err = ns.DeleteAllRead(uid)
	if err != nil {
		t.Fatalf("delete read: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	page, _ := ns.List(uid, 1, 20)
	if len(page.Items) != 0 || page.UnreadCount != 0 {
		t.Errorf("page = %+v, want empty", page)
	}
}
