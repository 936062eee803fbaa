package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/metrics"
	"github.com/dukerupert/notifly/internal/preference"
	"github.com/dukerupert/notifly/internal/store"
)

// CodeMailer emails verification codes. *email.Client satisfies it.
type CodeMailer interface {
	Configured() bool
	SendVerificationCode(ctx context.Context, to, code string) error
}

type VerificationHandler struct {
	prefStore *store.PreferenceStore
	mailer    CodeMailer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewVerificationHandler creates a VerificationHandler. mailer may be nil;
// codes for channels without a provider are written to the log.
func NewVerificationHandler(ps *store.PreferenceStore, mailer CodeMailer, m *metrics.Metrics, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{prefStore: ps, mailer: mailer, metrics: m, logger: logger}
}

func (h *VerificationHandler) countEmail(result string) {
	if h.metrics != nil {
		h.metrics.EmailsSent.WithLabelValues("verification", result).Inc()
	}
}

type sendCodeRequest struct {
	Channel preference.Channel `json:"channel"`
	Contact string             `json:"contact"`
	Code    string             `json:"code"`
}

// SendCode handles POST /api/verification/code. The contact must be the one
// stored for the channel so the endpoint cannot mail arbitrary addresses.
func (h *VerificationHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req sendCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.Channel.Valid() {
		writeError(w, http.StatusBadRequest, "unknown channel")
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" || len(req.Code) > 12 || !isDigits(req.Code) {
		writeError(w, http.StatusBadRequest, "code must be numeric")
		return
	}

	prefs, err := h.prefStore.Load(userID)
	if err != nil {
		h.logger.Error("load preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	if prefs.Get(req.Channel).Contact != req.Contact {
		writeError(w, http.StatusConflict, "contact does not match the saved value")
		return
	}

	if req.Channel == preference.ChannelEmail && h.mailer != nil && h.mailer.Configured() {
		if err := h.mailer.SendVerificationCode(r.Context(), req.Contact, req.Code); err != nil {
			h.countEmail("failed")
			h.logger.Error("send verification email", "user_id", userID, "error", err)
			writeError(w, http.StatusBadGateway, "failed to send verification email")
			return
		}
		h.countEmail("sent")
	} else {
		h.logger.Info("verification code issued", "user_id", userID, "channel", req.Channel, "contact", req.Contact, "code", req.Code)
	}

	w.WriteHeader(http.StatusNoContent)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
