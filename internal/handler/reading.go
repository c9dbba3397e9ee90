package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/reading"
	"github.com/pointsmith/pointsmith/internal/store"
	"github.com/pointsmith/pointsmith/internal/websocket"
)

type ReadingHandler struct {
	service *reading.Service
	users   *store.UserStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewReadingHandler(s *reading.Service, us *store.UserStore, hub *websocket.Hub, logger *slog.Logger) *ReadingHandler {
	return &ReadingHandler{service: s, users: us, hub: hub, logger: logger}
}

func (h *ReadingHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		BookTitle   string `json:"book_title"`
		TotalPages  int    `json:"total_pages"`
		TotalPoints int    `json:"total_points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.BookTitle = strings.TrimSpace(req.BookTitle)
	if req.BookTitle == "" {
		writeError(w, http.StatusBadRequest, "book_title is required")
		return
	}
	if req.TotalPages <= 0 || req.TotalPoints <= 0 {
		writeError(w, http.StatusBadRequest, "total_pages and total_points must be positive")
		return
	}

	book, err := h.service.Start(userID, req.BookTitle, req.TotalPages, req.TotalPoints)
	if err != nil {
		h.logger.Error("start book", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start book")
		return
	}

	writeJSON(w, http.StatusCreated, book)
}

func (h *ReadingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	book, err := h.service.Get(id)
	if errors.Is(err, reading.ErrBookNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get book")
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (h *ReadingHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	books, err := h.service.List(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list books")
		return
	}
	if books == nil {
		books = []model.ReadingProgress{}
	}
	writeJSON(w, http.StatusOK, books)
}

// UpdatePage records where a reader is in a book. Crossing a quartile
// checkpoint pays out points and may unlock badges.
func (h *ReadingHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		CurrentPage int `json:"current_page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := h.service.UpdatePage(id, req.CurrentPage)
	if errors.Is(err, reading.ErrBookNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if errors.Is(err, reading.ErrInvalidPage) {
		writeError(w, http.StatusBadRequest, "current_page must not be negative")
		return
	}
	if err != nil {
		h.logger.Error("update reading progress", "book_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update progress")
		return
	}

	h.broadcastUpdate(res)
	writeJSON(w, http.StatusOK, res)
}

func (h *ReadingHandler) broadcastUpdate(res *reading.UpdateResult) {
	user, err := h.users.GetByID(res.Book.UserID)
	if err != nil || user == nil || user.GroupID == nil {
		return
	}

	h.hub.Broadcast(*user.GroupID, websocket.Message{
		Event:  websocket.EventReadingUpdated,
		UserID: res.Book.UserID,
		Extra: map[string]any{
			"book_id":        res.Book.ID,
			"current_page":   res.Book.CurrentPage,
			"milestone":      res.Book.LastMilestone,
			"points_awarded": res.PointsAwarded,
			"finished":       res.Book.IsFinished,
		},
	})
	for i := range res.NewBadges {
		h.hub.Broadcast(*user.GroupID, websocket.Message{
			Event:  websocket.EventBadgeUnlocked,
			UserID: res.Book.UserID,
			Extra:  map[string]any{"badge_id": res.NewBadges[i].ID, "badge": res.NewBadges[i].Name},
		})
	}
}

func (h *ReadingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.service.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
