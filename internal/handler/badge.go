package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pointsmith/pointsmith/internal/achievement"
	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/store"
)

type BadgeHandler struct {
	store  *store.BadgeStore
	engine *achievement.Engine
	logger *slog.Logger
}

func NewBadgeHandler(s *store.BadgeStore, e *achievement.Engine, logger *slog.Logger) *BadgeHandler {
	return &BadgeHandler{store: s, engine: e, logger: logger}
}

func (h *BadgeHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.ListTemplates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	if templates == nil {
		templates = []model.Badge{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *BadgeHandler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	badges, err := h.store.ListByGroup(groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list badges")
		return
	}
	if badges == nil {
		badges = []model.Badge{}
	}
	writeJSON(w, http.StatusOK, badges)
}

func (h *BadgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID        int64  `json:"group_id"`
		Name           string `json:"name"`
		Description    string `json:"description"`
		Category       string `json:"category"`
		Rarity         string `json:"rarity"`
		PointsRequired int    `json:"points_required"`
		UnlockType     string `json:"unlock_type"`
		AutoCriteria   string `json:"auto_criteria"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.GroupID <= 0 {
		writeError(w, http.StatusBadRequest, "name and group_id are required")
		return
	}

	switch req.UnlockType {
	case "":
		req.UnlockType = model.UnlockAutomatic
	case model.UnlockAutomatic, model.UnlockManual, model.UnlockHybrid:
	default:
		writeError(w, http.StatusBadRequest, "unlock_type must be automatic, manual, or hybrid")
		return
	}

	if req.AutoCriteria != "" {
		if _, err := achievement.ParseCriteria(req.AutoCriteria); err != nil {
			writeError(w, http.StatusBadRequest, "invalid auto_criteria")
			return
		}
	}

	if req.Category == "" {
		req.Category = "general"
	}
	if req.Rarity == "" {
		req.Rarity = "common"
	}

	badge, err := h.store.Create(&model.Badge{
		GroupID:        &req.GroupID,
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		Rarity:         req.Rarity,
		PointsRequired: req.PointsRequired,
		UnlockType:     req.UnlockType,
		AutoCriteria:   req.AutoCriteria,
		Enabled:        true,
	})
	if err != nil {
		h.logger.Error("create badge", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create badge")
		return
	}

	writeJSON(w, http.StatusCreated, badge)
}

func (h *BadgeHandler) ImportTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		GroupID int64 `json:"group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupID <= 0 {
		writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}

	badge, err := h.store.ImportTemplate(templateID, req.GroupID)
	if err != nil {
		writeError(w, http.StatusNotFound, "badge template not found")
		return
	}

	writeJSON(w, http.StatusCreated, badge)
}

func (h *BadgeHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.store.SetEnabled(id, req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update badge")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *BadgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.store.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete badge")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUnlocked returns a user's earned badges.
func (h *BadgeHandler) ListUnlocked(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	unlocked, err := h.engine.Unlocked(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list badges")
		return
	}
	if unlocked == nil {
		unlocked = []model.UnlockedBadge{}
	}
	writeJSON(w, http.StatusOK, unlocked)
}

// Check re-evaluates a user's automatic badges on demand.
func (h *BadgeHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	newBadges, err := h.engine.CheckAndUnlock(userID)
	if errors.Is(err, achievement.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("badge check", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check badges")
		return
	}
	if newBadges == nil {
		newBadges = []model.Badge{}
	}
	writeJSON(w, http.StatusOK, newBadges)
}

// UnlockManually awards a manual or hybrid badge.
func (h *BadgeHandler) UnlockManually(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		BadgeID int64 `json:"badge_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BadgeID <= 0 {
		writeError(w, http.StatusBadRequest, "badge_id is required")
		return
	}

	badge, err := h.engine.UnlockManually(userID, req.BadgeID)
	if errors.Is(err, achievement.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if errors.Is(err, achievement.ErrBadgeNotFound) {
		writeError(w, http.StatusNotFound, "badge not found")
		return
	}
	if errors.Is(err, achievement.ErrAlreadyUnlocked) {
		writeError(w, http.StatusConflict, "badge already unlocked")
		return
	}
	if err != nil {
		h.logger.Error("manual unlock", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to unlock badge")
		return
	}

	writeJSON(w, http.StatusCreated, badge)
}

func (h *BadgeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	stats, err := h.engine.Stats(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
