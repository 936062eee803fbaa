package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/notifyerr"
	"github.com/dukerupert/notifly/internal/preference"
	"github.com/dukerupert/notifly/internal/store"
	"github.com/dukerupert/notifly/internal/websocket"
)

type PreferenceHandler struct {
	prefStore *store.PreferenceStore
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewPreferenceHandler(ps *store.PreferenceStore, hub *websocket.Hub, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefStore: ps, hub: hub, logger: logger}
}

type preferencesBody struct {
	Preferences preference.Preferences `json:"preferences"`
}

// Get handles GET /api/preferences
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	prefs, err := h.prefStore.Load(userID)
	if err != nil {
		h.logger.Error("load preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, preferencesBody{Preferences: prefs})
}

// Update handles PUT /api/preferences. The whole set is replaced; a channel
// that is enabled or carries a category without being verified is rejected
// with 422 and nothing is stored.
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req preferencesBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Preferences == nil {
		writeError(w, http.StatusBadRequest, "preferences are required")
		return
	}

	if err := preference.Validate(req.Preferences); err != nil {
		if errors.Is(err, notifyerr.ErrChannelNotVerified) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.prefStore.Save(userID, req.Preferences); err != nil {
		h.logger.Error("save preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}

	prefs, err := h.prefStore.Load(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}

	if h.hub != nil {
		h.hub.BroadcastTo(userID, websocket.NewMessage("preferences", "changed", 0, nil))
	}
	writeJSON(w, http.StatusOK, preferencesBody{Preferences: prefs})
}
