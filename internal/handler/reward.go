package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pointsmith/pointsmith/internal/email"
	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/push"
	"github.com/pointsmith/pointsmith/internal/redemption"
	"github.com/pointsmith/pointsmith/internal/store"
	"github.com/pointsmith/pointsmith/internal/websocket"
)

type RewardHandler struct {
	store    *store.RewardStore
	users    *store.UserStore
	workflow *redemption.Workflow
	hub      *websocket.Hub
	notifier *push.Notifier
	email    *email.Client
	logger   *slog.Logger
}

func NewRewardHandler(s *store.RewardStore, us *store.UserStore, w *redemption.Workflow, hub *websocket.Hub, n *push.Notifier, ec *email.Client, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{store: s, users: us, workflow: w, hub: hub, notifier: n, email: ec, logger: logger}
}

// --- Catalog ---

func (h *RewardHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.ListTemplates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	if templates == nil {
		templates = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *RewardHandler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rewards, err := h.store.ListByGroup(groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rewards")
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID     int64  `json:"group_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		PointCost   int    `json:"point_cost"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.GroupID <= 0 {
		writeError(w, http.StatusBadRequest, "title and group_id are required")
		return
	}
	if req.PointCost <= 0 {
		writeError(w, http.StatusBadRequest, "point_cost must be positive")
		return
	}

	reward, err := h.store.Create(&model.Reward{
		GroupID:     &req.GroupID,
		Title:       req.Title,
		Description: req.Description,
		PointCost:   req.PointCost,
		Active:      true,
	})
	if err != nil {
		h.logger.Error("create reward", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reward")
		return
	}

	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) ImportTemplate(w http.ResponseWriter, r *http.Request) {
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

	reward, err := h.store.ImportTemplate(templateID, req.GroupID)
	if err != nil {
		writeError(w, http.StatusNotFound, "reward template not found")
		return
	}

	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.store.SetActive(id, req.Active); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update reward")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.store.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete reward")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Redemptions ---

func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		RewardID int64  `json:"reward_id"`
		Comment  string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RewardID <= 0 {
		writeError(w, http.StatusBadRequest, "reward_id is required")
		return
	}

	red, err := h.workflow.Redeem(userID, req.RewardID, req.Comment)
	if errors.Is(err, redemption.ErrRewardNotFound) {
		writeError(w, http.StatusNotFound, "reward not found")
		return
	}
	if errors.Is(err, redemption.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if errors.Is(err, redemption.ErrInsufficientBalance) {
		writeError(w, http.StatusConflict, "insufficient balance")
		return
	}
	if err != nil {
		h.logger.Error("redeem", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create redemption")
		return
	}

	h.notifyRequested(red)
	writeJSON(w, http.StatusCreated, red)
}

// notifyRequested tells the group's parents about a fresh request over
// every channel they have: websocket, push, and email.
func (h *RewardHandler) notifyRequested(red *model.RewardRedemption) {
	user, err := h.users.GetByID(red.UserID)
	if err != nil || user == nil || user.GroupID == nil {
		return
	}
	reward, err := h.store.GetByID(red.RewardID)
	if err != nil || reward == nil {
		return
	}

	h.hub.Broadcast(*user.GroupID, websocket.Message{
		Event:  websocket.EventRedemptionRequested,
		UserID: red.UserID,
		Extra:  map[string]any{"redemption_id": red.ID, "reward": reward.Title},
	})
	h.notifier.RedemptionRequested(*user.GroupID, user.Name, reward.Title)

	if h.email.Configured() {
		parents, err := h.users.Parents(*user.GroupID)
		if err != nil {
			return
		}
		for _, p := range parents {
			if p.Email == "" {
				continue
			}
			if err := h.email.SendRedemptionRequested(p.Email, user.Name, reward.Title, reward.PointCost); err != nil {
				h.logger.Warn("redemption email failed", "to", p.Email, "error", err)
			}
		}
	}
}

// Resolve approves or denies a pending request. The acting parent
// authorizes with their PIN.
func (h *RewardHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Status        string `json:"status"`
		ParentID      int64  `json:"parent_id"`
		PIN           string `json:"pin"`
		ParentComment string `json:"parent_comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	parent, err := h.users.GetByID(req.ParentID)
	if err != nil || parent == nil || parent.Role != model.RoleParent {
		writeError(w, http.StatusForbidden, "parent not found")
		return
	}
	if parent.HasPIN {
		if err := verifyPIN(h.users, parent.ID, req.PIN); err != nil {
			writeError(w, http.StatusUnauthorized, "incorrect PIN")
			return
		}
	}

	red, err := h.workflow.Resolve(id, req.Status, req.ParentComment)
	if errors.Is(err, redemption.ErrInvalidStatus) {
		writeError(w, http.StatusBadRequest, "status must be approved or denied")
		return
	}
	if errors.Is(err, redemption.ErrRedemptionNotFound) {
		writeError(w, http.StatusNotFound, "redemption not found")
		return
	}
	if errors.Is(err, redemption.ErrInvalidTransition) {
		writeError(w, http.StatusConflict, "redemption already resolved")
		return
	}
	if errors.Is(err, redemption.ErrInsufficientBalance) {
		writeError(w, http.StatusConflict, "insufficient balance")
		return
	}
	if err != nil {
		h.logger.Error("resolve redemption", "redemption_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve redemption")
		return
	}

	h.notifyResolved(red)
	writeJSON(w, http.StatusOK, red)
}

func (h *RewardHandler) notifyResolved(red *model.RewardRedemption) {
	user, err := h.users.GetByID(red.UserID)
	if err != nil || user == nil || user.GroupID == nil {
		return
	}
	reward, err := h.store.GetByID(red.RewardID)
	if err != nil || reward == nil {
		return
	}

	h.hub.Broadcast(*user.GroupID, websocket.Message{
		Event:  websocket.EventRedemptionResolved,
		UserID: red.UserID,
		Extra:  map[string]any{"redemption_id": red.ID, "status": red.Status},
	})
	h.notifier.RedemptionResolved(red.UserID, reward.Title, red.Status)
}

// Pending returns a group's open requests.
func (h *RewardHandler) Pending(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	pending, err := h.workflow.Pending(groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list pending redemptions")
		return
	}
	if pending == nil {
		pending = []model.RewardRedemption{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// History returns a user's requests.
func (h *RewardHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	history, err := h.workflow.History(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list redemptions")
		return
	}
	if history == nil {
		history = []model.RewardRedemption{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *RewardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	stats, err := h.workflow.Stats(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
