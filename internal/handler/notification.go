package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/store"
	"github.com/dukerupert/notifly/internal/websocket"
)

type NotificationHandler struct {
	notifStore *store.NotificationStore
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, hub *websocket.Hub, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifStore: ns, hub: hub, logger: logger}
}

// changed tells the user's other open pages to refetch.
func (h *NotificationHandler) changed(userID int64, action string, id int64) {
	if h.hub != nil {
		h.hub.BroadcastTo(userID, websocket.NewMessage("notifications", "changed", id, map[string]any{"action": action}))
	}
}

// List handles GET /api/notifications?page=&page_size=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	pageSize, err := queryInt(r, "page_size", store.DefaultPageSize)
	if err != nil || pageSize < 1 {
		writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
		return
	}

	result, err := h.notifStore.List(userID, page, pageSize)
	if err != nil {
		h.logger.Error("list notifications", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	n, err := h.notifStore.UnreadCount(userID)
	if err != nil {
		h.logger.Error("count unread", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

// MarkRead handles PATCH /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	found, err := h.notifStore.MarkRead(id, userID)
	if err != nil {
		h.logger.Error("mark notification read", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	h.changed(userID, "read", id)
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles PATCH /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	n, err := h.notifStore.MarkAllRead(userID)
	if err != nil {
		h.logger.Error("mark all read", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}

	if n > 0 {
		h.changed(userID, "read_all", 0)
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	found, err := h.notifStore.Delete(id, userID)
	if err != nil {
		h.logger.Error("delete notification", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	h.changed(userID, "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllRead handles DELETE /api/notifications/read
func (h *NotificationHandler) DeleteAllRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	n, err := h.notifStore.DeleteAllRead(userID)
	if err != nil {
		h.logger.Error("delete read notifications", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete notifications")
		return
	}

	if n > 0 {
		h.changed(userID, "cleared", 0)
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
