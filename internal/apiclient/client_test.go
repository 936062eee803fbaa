package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/notifyerr"
	"github.com/dukerupert/notifly/internal/platform"
	"github.com/dukerupert/notifly/internal/preference"
	"github.com/dukerupert/notifly/internal/subscription"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", auth.StaticSession{ID: 1, BearerToken: "tok"})
}

func TestBearerTokenAndPaths(t *testing.T) {
	type call struct{ method, path, query string }
	var calls []call

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q, want %q", got, "Bearer tok")
		}
		calls = append(calls, call{r.Method, r.URL.Path, r.URL.RawQuery})
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	c.MarkRead(ctx, 5)
	c.MarkAllRead(ctx)
	c.DeleteNotification(ctx, 6)
	c.DeleteAllRead(ctx)
	c.RemoveSubscription(ctx, "dev 1")

	want := []call{
		{"PATCH", "/api/notifications/5/read", ""},
		{"PATCH", "/api/notifications/read-all", ""},
		{"DELETE", "/api/notifications/6", ""},
		{"DELETE", "/api/notifications/read", ""},
		{"DELETE", "/api/push/subscription", "device_id=dev+1"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, notifyerr.ErrUnauthorized},
		{http.StatusNotFound, notifyerr.ErrNotFound},
		{http.StatusInternalServerError, notifyerr.ErrNetwork},
		{http.StatusBadGateway, notifyerr.ErrNetwork},
		{http.StatusUnprocessableEntity, notifyerr.ErrChannelNotVerified},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
		})
		err := c.MarkRead(context.Background(), 1)
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Message != "nope" {
			t.Errorf("status %d: expected StatusError with message, got %v", tt.status, err)
		}
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, auth.StaticSession{ID: 1})
	err := c.MarkAllRead(context.Background())
	if !errors.Is(err, notifyerr.ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
}

func TestRemoveSubscriptionNotFoundIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})
	if err := c.RemoveSubscription(context.Background(), "dev"); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestSaveSubscriptionBody(t *testing.T) {
	var got subscription.SaveRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/push/subscription" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	})

	req := subscription.SaveRequest{
		DeviceID:   "dev-1",
		DeviceName: "laptop",
		Subscription: platform.Subscription{
			Endpoint: "https://push.example.com/abc",
			Keys:     platform.Keys{P256dh: "p", Auth: "a"},
		},
	}
	if err := c.SaveSubscription(context.Background(), req); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got != req {
		t.Errorf("body = %+v, want %+v", got, req)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	var stored json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Preferences json.RawMessage `json:"preferences"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			stored = body.Preferences
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"preferences":` + string(stored) + `}`))
		}
	})
	ctx := context.Background()

	p := preference.Defaults()
	email := p[preference.ChannelEmail]
	email.Contact = "a@example.com"
	email.Verified = true
	email.Enabled = true
	email.Categories[preference.CategorySecurity] = true
	p[preference.ChannelEmail] = email

	if err := c.SavePreferences(ctx, 1, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := c.LoadPreferences(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ge := got[preference.ChannelEmail]
	if ge.Contact != email.Contact || !ge.Verified || !ge.Enabled || !ge.Categories[preference.CategorySecurity] {
		t.Errorf("email = %+v, want %+v", ge, email)
	}
	if len(got) != len(p) {
		t.Errorf("channels = %d, want %d", len(got), len(p))
	}
}

func TestListNotifications(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query(); q.Get("page") != "2" || q.Get("page_size") != "10" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":9,"kind":"order","title":"t","text":"x","read":false,"created_at":"2026-01-02T03:04:05Z"}],
			"unread_count":4,"pagination":{"page":2,"page_size":10,"total":11,"total_pages":2}}`))
	})

	page, err := c.ListNotifications(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != 9 || page.Items[0].Kind != "order" {
		t.Errorf("items = %+v", page.Items)
	}
	if page.UnreadCount != 4 || page.Pagination.TotalPages != 2 {
		t.Errorf("page = %+v", page)
	}
}

func TestVAPIDKeyAndCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/push/vapid-key":
			w.Write([]byte(`{"public_key":"BPub"}`))
		case "/api/notifications/unread-count":
			w.Write([]byte(`{"unread_count":7}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	key, err := c.VAPIDKey(ctx)
	if err != nil || key != "BPub" {
		t.Errorf("VAPIDKey() = %q, %v", key, err)
	}
	n, err := c.UnreadCount(ctx)
	if err != nil || n != 7 {
		t.Errorf("UnreadCount() = %d, %v", n, err)
	}
}

func TestSendCode(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/verification/code" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	})
	if err := c.SendCode(context.Background(), preference.ChannelEmail, "a@example.com", "123456"); err != nil {
		t.Fatalf("send code: %v", err)
	}
	if body["channel"] != "email" || body["contact"] != "a@example.com" || body["code"] != "123456" {
		t.Errorf("body = %v", body)
	}
}

func TestBackupCalls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "POST /api/admin/backups":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"key":"notifly/backup-a.db.enc"}`))
		case "GET /api/admin/backups":
			w.Write([]byte(`{"backups":[{"key":"notifly/backup-a.db.enc","size":42}]}`))
		case "GET /api/admin/backups/status":
			w.Write([]byte(`{"state":"idle","in_progress":false}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	key, err := c.RunBackup(ctx)
	if err != nil || key != "notifly/backup-a.db.enc" {
		t.Errorf("RunBackup() = %q, %v", key, err)
	}
	list, err := c.ListBackups(ctx)
	if err != nil || len(list) != 1 || list[0].Size != 42 {
		t.Errorf("ListBackups() = %+v, %v", list, err)
	}
	st, err := c.BackupStatus(ctx)
	if err != nil || st.State != "idle" {
		t.Errorf("BackupStatus() = %+v, %v", st, err)
	}
}
