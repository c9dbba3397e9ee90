package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pointsmith/pointsmith/internal/achievement"
	"github.com/pointsmith/pointsmith/internal/ledger"
	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/push"
	"github.com/pointsmith/pointsmith/internal/store"
	"github.com/pointsmith/pointsmith/internal/websocket"
)

type LedgerHandler struct {
	ledger   *ledger.Ledger
	engine   *achievement.Engine
	users    *store.UserStore
	hub      *websocket.Hub
	notifier *push.Notifier
	logger   *slog.Logger
}

func NewLedgerHandler(l *ledger.Ledger, e *achievement.Engine, us *store.UserStore, hub *websocket.Hub, n *push.Notifier, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, engine: e, users: us, hub: hub, notifier: n, logger: logger}
}

type creditRequest struct {
	Amount      int    `json:"amount"`
	Description string `json:"description"`
	Source      string `json:"source"`
	SourceID    *int64 `json:"source_id"`
}

// creditResponse reports the transaction plus any badges the award
// tipped over their thresholds.
type creditResponse struct {
	Transaction *model.PointTransaction `json:"transaction"`
	NewBadges   []model.Badge           `json:"new_badges,omitempty"`
}

func (h *LedgerHandler) Earn(w http.ResponseWriter, r *http.Request) {
	h.credit(w, r, func(userID int64, req creditRequest) (*model.PointTransaction, error) {
		return h.ledger.Earn(userID, req.Amount, req.Description, req.Source, req.SourceID)
	})
}

func (h *LedgerHandler) Bonus(w http.ResponseWriter, r *http.Request) {
	h.credit(w, r, func(userID int64, req creditRequest) (*model.PointTransaction, error) {
		return h.ledger.Bonus(userID, req.Amount, req.Description)
	})
}

func (h *LedgerHandler) QuizBonus(w http.ResponseWriter, r *http.Request) {
	h.credit(w, r, func(userID int64, req creditRequest) (*model.PointTransaction, error) {
		return h.ledger.QuizBonus(userID, req.Amount, req.Description, req.SourceID)
	})
}

func (h *LedgerHandler) credit(w http.ResponseWriter, r *http.Request, apply func(int64, creditRequest) (*model.PointTransaction, error)) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tx, err := apply(userID, req)
	if errors.Is(err, ledger.ErrInvalidAmount) {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if errors.Is(err, ledger.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("credit points", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to credit points")
		return
	}

	newBadges := h.afterCredit(userID, tx)
	writeJSON(w, http.StatusCreated, creditResponse{Transaction: tx, NewBadges: newBadges})
}

// afterCredit runs the badge pass and fan-out once points have landed.
// All of it is best effort: the credit already committed.
func (h *LedgerHandler) afterCredit(userID int64, tx *model.PointTransaction) []model.Badge {
	newBadges, err := h.engine.CheckAndUnlock(userID)
	if err != nil {
		h.logger.Error("badge check after credit failed", "user_id", userID, "error", err)
	}

	user, err := h.users.GetByID(userID)
	if err != nil || user == nil || user.GroupID == nil {
		return newBadges
	}

	h.hub.Broadcast(*user.GroupID, websocket.Message{
		Event:  websocket.EventPointsEarned,
		UserID: userID,
		Extra:  map[string]any{"amount": tx.Amount, "kind": tx.Kind},
	})
	for i := range newBadges {
		h.hub.Broadcast(*user.GroupID, websocket.Message{
			Event:  websocket.EventBadgeUnlocked,
			UserID: userID,
			Extra:  map[string]any{"badge_id": newBadges[i].ID, "badge": newBadges[i].Name},
		})
		h.notifier.BadgeUnlocked(userID, &newBadges[i])
	}
	return newBadges
}

func (h *LedgerHandler) Spend(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tx, err := h.ledger.Spend(userID, req.Amount, req.Description, req.Source, req.SourceID)
	if errors.Is(err, ledger.ErrInvalidAmount) {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if errors.Is(err, ledger.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		writeError(w, http.StatusConflict, "insufficient balance")
		return
	}
	if err != nil {
		h.logger.Error("spend points", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to spend points")
		return
	}

	if user, err := h.users.GetByID(userID); err == nil && user != nil && user.GroupID != nil {
		h.hub.Broadcast(*user.GroupID, websocket.Message{
			Event:  websocket.EventPointsSpent,
			UserID: userID,
			Extra:  map[string]any{"amount": tx.Amount},
		})
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	balance, err := h.ledger.Balance(userID)
	if errors.Is(err, ledger.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"balance": balance})
}

func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	history, err := h.ledger.History(userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get history")
		return
	}
	if history == nil {
		history = []model.PointTransaction{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	stats, err := h.ledger.Stats(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
