package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/model"
	"github.com/dukerupert/notifly/internal/push"
	"github.com/dukerupert/notifly/internal/store"
	"github.com/dukerupert/notifly/internal/subscription"
)

type PushHandler struct {
	pushStore  *store.PushStore
	service    *push.Service
	dispatcher *push.Dispatcher
	logger     *slog.Logger
}

// NewPushHandler creates a PushHandler. svc may be nil when VAPID keys are
// not configured; subscriptions are still stored but nothing is sent.
func NewPushHandler(ps *store.PushStore, svc *push.Service, d *push.Dispatcher, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, dispatcher: d, logger: logger}
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		writeError(w, http.StatusNotFound, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// SaveSubscription handles POST /api/push/subscription. A device that
// subscribes again replaces its previous subscription.
func (h *PushHandler) SaveSubscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req subscription.SaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.DeviceID = strings.TrimSpace(req.DeviceID)
	sub := req.Subscription
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription endpoint, p256dh, and auth are required")
		return
	}
	if !strings.HasPrefix(sub.Endpoint, "https://") {
		writeError(w, http.StatusBadRequest, "subscription endpoint must be https")
		return
	}

	saved, err := h.pushStore.SaveSubscription(userID, req.DeviceID, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("save push subscription", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}

// RemoveSubscription handles DELETE /api/push/subscription?device_id=
func (h *PushHandler) RemoveSubscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	removed, err := h.pushStore.RemoveSubscription(userID, deviceID)
	if err != nil {
		h.logger.Error("remove push subscription", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	subs, err := h.pushStore.ListByUser(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// TestNotification handles POST /api/push/test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	sent := h.dispatcher.SendTest(r.Context(), auth.UserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
