package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/notifly/internal/model"
	"github.com/dukerupert/notifly/internal/push"
	"github.com/dukerupert/notifly/internal/store"
)

type EventHandler struct {
	dispatcher *push.Dispatcher
	userStore  *store.UserStore
	logger     *slog.Logger
}

func NewEventHandler(d *push.Dispatcher, us *store.UserStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{dispatcher: d, userStore: us, logger: logger}
}

// Emit handles POST /api/events. A repeated reference_id answers 200 with
// duplicate set; a new notification answers 201.
func (h *EventHandler) Emit(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if ev.UserID > 0 {
		user, err := h.userStore.GetByID(ev.UserID)
		if err != nil {
			h.logger.Error("lookup user", "user_id", ev.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to look up user")
			return
		}
		if user == nil {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
	}

	res, err := h.dispatcher.Emit(r.Context(), ev)
	if err != nil {
		if errors.Is(err, push.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("emit event", "user_id", ev.UserID, "kind", ev.Kind, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to emit event")
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}
