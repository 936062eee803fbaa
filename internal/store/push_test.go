package store

import "testing"

func setupPushTestDB(t *testing.T) (*PushStore, int64) {
	t.Helper()
	db := setupTestDB(t)
	return NewPushStore(db), createTestUser(t, db, "test@example.com")
}

func TestSaveSubscription(t *testing.T) {
	ps, uid := setupPushTestDB(t)

	sub, err := ps.SaveSubscription(uid, "dev-1", "https://push.example.com/sub1", "p256dh_key1", "auth_key1", "Chrome Desktop")
	if err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if sub.Endpoint != "https://push.example.com/sub1" {
		t.Errorf("endpoint = %q, want %q", sub.Endpoint, "https://push.example.com/sub1")
	}
	if sub.DeviceName != "Chrome Desktop" {
		t.Errorf("device_name = %q, want %q", sub.DeviceName, "Chrome Desktop")
	}
}

func TestSaveSubscriptionSupersedes(t *testing.T) {
	ps, uid := setupPushTestDB(t)

	sub1, _ := ps.SaveSubscription(uid, "dev-1", "https://push.example.com/old", "key1", "auth1", "Device A")
	sub2, err := ps.SaveSubscription(uid, "dev-1", "https://push.example.com/new", "key2", "auth2", "Device A")
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if sub2.ID != sub1.ID {
		t.Errorf("expected same row on resubscribe, got %d != %d", sub2.ID, sub1.ID)
	}
	if sub2.Endpoint != "https://push.example.com/new" || sub2.P256dhKey != "key2" {
		t.Errorf("subscription = %+v, want new endpoint and keys", sub2)
	}

	subs, _ := ps.ListByUser(uid)
	if len(subs) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(subs))
	}
}

func TestSaveSubscriptionMovesEndpoint(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	ps.SaveSubscription(alice, "dev-1", "https://push.example.com/shared", "k", "a", "")
	if _, err := ps.SaveSubscription(bob, "dev-9", "https://push.example.com/shared", "k", "a", ""); err != nil {
		t.Fatalf("save for bob: %v", err)
	}

	subs, _ := ps.ListByUser(alice)
	if len(subs) != 0 {
		t.Errorf("alice subscriptions = %d, want 0", len(subs))
	}
	subs, _ = ps.ListByUser(bob)
	if len(subs) != 1 {
		t.Errorf("bob subscriptions = %d, want 1", len(subs))
	}
}

func TestRemoveSubscription(t *testing.T) {
	ps, uid := setupPushTestDB(t)

	ps.SaveSubscription(uid, "dev-1", "https://push.example.com/sub1", "k", "a", "")
	ps.SaveSubscription(uid, "dev-2", "https://push.example.com/sub2", "k", "a", "")

	removed, err := ps.RemoveSubscription(uid, "dev-1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("expected removed = true")
	}
	removed, _ = ps.RemoveSubscription(uid, "dev-1")
	if removed {
		t.Error("expected removed = false on second call")
	}

	sub, _ := ps.GetByDevice(uid, "dev-1")
	if sub != nil {
		t.Errorf("expected nil after remove, got %+v", sub)
	}
	subs, _ := ps.ListByUser(uid)
	if len(subs) != 1 || subs[0].DeviceID != "dev-2" {
		t.Errorf("subscriptions = %+v, want only dev-2", subs)
	}
}

func TestDeleteByEndpoint(t *testing.T) {
	ps, uid := setupPushTestDB(t)

	ps.SaveSubscription(uid, "dev-1", "https://push.example.com/gone", "k", "a", "")
	if err := ps.DeleteByEndpoint("https://push.example.com/gone"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, _ := ps.ListByUser(uid)
	if len(subs) != 0 {
		t.Errorf("subscriptions = %d, want 0", len(subs))
	}
}

func TestSubscriptionsCascadeWithUser(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	uid := createTestUser(t, db, "test@example.com")
	ps.SaveSubscription(uid, "dev-1", "https://push.example.com/sub1", "k", "a", "")

	if _, err := db.Exec(`DELETE FROM users WHERE id = ?`, uid); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	subs, _ := ps.ListByUser(uid)
	if len(subs) != 0 {
		t.Errorf("subscriptions = %d, want 0 after user delete", len(subs))
	}
}
