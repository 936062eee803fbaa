package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/notifly/internal/backup"
)

// BackupManager is the part of *backup.Manager the admin routes use.
type BackupManager interface {
	Enabled() bool
	RunNow(ctx context.Context) (string, error)
	List(ctx context.Context) ([]backup.Object, error)
	Status() backup.Status
}

type BackupHandler struct {
	mgr    BackupManager
	logger *slog.Logger
}

func NewBackupHandler(mgr BackupManager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{mgr: mgr, logger: logger}
}

// Run handles POST /api/admin/backups
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.mgr.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "backup not configured")
		return
	}
	key, err := h.mgr.RunNow(r.Context())
	if err != nil {
		h.logger.Error("manual backup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

// List handles GET /api/admin/backups
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	objects, err := h.mgr.List(r.Context())
	if errors.Is(err, backup.ErrDisabled) {
		writeError(w, http.StatusServiceUnavailable, "backup not configured")
		return
	}
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusBadGateway, "failed to list backups")
		return
	}
	if objects == nil {
		objects = []backup.Object{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": objects})
}

// Status handles GET /api/admin/backups/status
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.Status())
}
