package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pointsmith/pointsmith/internal/backup"
	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/store"
)

type BackupHandler struct {
	manager *backup.Manager
	store   *store.BackupStore
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, s *store.BackupStore, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, store: s, logger: logger}
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": h.manager.Enabled(),
		"status":  h.manager.Status(),
	})
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		var err error
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	backups, err := h.store.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backups)
}

func (h *BackupHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}

	id, err := h.manager.RunNow(r.Context())
	if err != nil {
		h.logger.Error("manual backup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}

	record, err := h.store.GetByID(id)
	if err != nil || record == nil {
		writeJSON(w, http.StatusCreated, map[string]int64{"backup_id": id})
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// Restore replaces the database with a backup. On success the process
// exits and the supervisor restarts it on the restored file, so the
// client never sees a response body.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if !h.manager.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}

	if err := h.manager.Restore(r.Context(), id); err != nil {
		h.logger.Error("restore failed", "backup_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "restore failed")
		return
	}
}

// Download streams the encrypted backup file. The caller decrypts it
// with their passphrase.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if !h.manager.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}

	body, size, err := h.manager.Download(r.Context(), id)
	if err != nil {
		h.logger.Error("backup download failed", "backup_id", id, "error", err)
		writeError(w, http.StatusNotFound, "backup not available")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("backup download interrupted", "backup_id", id, "error", err)
	}
}
