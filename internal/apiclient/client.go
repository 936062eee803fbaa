// Package apiclient talks to the notification backend over its JSON API.
// A Client satisfies the backend interfaces of the subscription, preference
// and inbox packages.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/backup"
	"github.com/dukerupert/notifly/internal/inbox"
	"github.com/dukerupert/notifly/internal/notifyerr"
	"github.com/dukerupert/notifly/internal/preference"
	"github.com/dukerupert/notifly/internal/subscription"
)

// Client is an authenticated API client.
type Client struct {
	baseURL    string
	session    auth.Session
	httpClient *http.Client
}

// New creates a Client for the server at baseURL.
func New(baseURL string, session auth.Session) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

var (
	_ subscription.Backend  = (*Client)(nil)
	_ preference.Backend    = (*Client)(nil)
	_ preference.CodeSender = (*Client)(nil)
	_ inbox.Backend         = (*Client)(nil)
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Is lets callers match a StatusError against the notifyerr sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case notifyerr.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case notifyerr.ErrNotFound:
		return e.Status == http.StatusNotFound
	case notifyerr.ErrNetwork:
		return e.Status >= 500
	case notifyerr.ErrChannelNotVerified:
		return e.Status == http.StatusUnprocessableEntity
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.session.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %w: %v", method, path, notifyerr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		return fmt.Errorf("%s %s: %w", method, path, &StatusError{Status: resp.StatusCode, Message: e.Error})
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// VAPIDKey returns the server's application server key.
func (c *Client) VAPIDKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey string `json:"public_key"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/push/vapid-key", nil, &resp); err != nil {
		return "", err
	}
	return resp.PublicKey, nil
}

func (c *Client) SaveSubscription(ctx context.Context, req subscription.SaveRequest) error {
	return c.do(ctx, http.MethodPost, "/api/push/subscription", req, nil)
}

func (c *Client) RemoveSubscription(ctx context.Context, deviceID string) error {
	path := "/api/push/subscription?device_id=" + url.QueryEscape(deviceID)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, notifyerr.ErrNotFound) {
		// Already gone.
		return nil
	}
	return err
}

type preferencesBody struct {
	Preferences preference.Preferences `json:"preferences"`
}

// LoadPreferences loads the authenticated user's preferences. userID must
// match the session; the server resolves the user from the token.
func (c *Client) LoadPreferences(ctx context.Context, userID int64) (preference.Preferences, error) {
	var resp preferencesBody
	if err := c.do(ctx, http.MethodGet, "/api/preferences", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Preferences, nil
}

func (c *Client) SavePreferences(ctx context.Context, userID int64, prefs preference.Preferences) error {
	return c.do(ctx, http.MethodPut, "/api/preferences", preferencesBody{Preferences: prefs}, nil)
}

// SendCode asks the server to deliver a verification code to contact.
func (c *Client) SendCode(ctx context.Context, ch preference.Channel, contact, code string) error {
	body := map[string]string{
		"channel": string(ch),
		"contact": contact,
		"code":    code,
	}
	return c.do(ctx, http.MethodPost, "/api/verification/code", body, nil)
}

func (c *Client) ListNotifications(ctx context.Context, page, pageSize int) (inbox.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var resp inbox.Page
	if err := c.do(ctx, http.MethodGet, "/api/notifications?"+q.Encode(), nil, &resp); err != nil {
		return inbox.Page{}, err
	}
	return resp, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

func (c *Client) MarkRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/notifications/%d/read", id), nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPatch, "/api/notifications/read-all", nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/notifications/%d", id), nil, nil)
}

func (c *Client) DeleteAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/read", nil, nil)
}

// EmitRequest asks the server to create a notification for a user.
type EmitRequest struct {
	UserID      int64  `json:"user_id"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Details     string `json:"details,omitempty"`
	URL         string `json:"url,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// EmitResult is the server's answer to Emit.
type EmitResult struct {
	ID        int64 `json:"id"`
	Duplicate bool  `json:"duplicate"`
	Pushed    int   `json:"pushed"`
	Emailed   bool  `json:"emailed"`
}

// Emit creates a notification through the admin events endpoint.
func (c *Client) Emit(ctx context.Context, req EmitRequest) (EmitResult, error) {
	var res EmitResult
	if err := c.do(ctx, http.MethodPost, "/api/events", req, &res); err != nil {
		return EmitResult{}, err
	}
	return res, nil
}

// SendTestPush asks the server to push a test notification to every
// subscription of the user.
func (c *Client) SendTestPush(ctx context.Context) (int, error) {
	var resp struct {
		Sent int `json:"sent"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/push/test", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Sent, nil
}

// RunBackup asks the server to back up its database now and returns the
// object key.
func (c *Client) RunBackup(ctx context.Context) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/admin/backups", nil, &resp); err != nil {
		return "", err
	}
	return resp.Key, nil
}

// ListBackups lists stored backups, newest first.
func (c *Client) ListBackups(ctx context.Context) ([]backup.Object, error) {
	var resp struct {
		Backups []backup.Object `json:"backups"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/admin/backups", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Backups, nil
}

func (c *Client) BackupStatus(ctx context.Context) (backup.Status, error) {
	var st backup.Status
	if err := c.do(ctx, http.MethodGet, "/api/admin/backups/status", nil, &st); err != nil {
		return backup.Status{}, err
	}
	return st, nil
}
