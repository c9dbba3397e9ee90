package reading

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pointsmith/pointsmith/internal/achievement"
	"github.com/pointsmith/pointsmith/internal/ledger"
	"github.com/pointsmith/pointsmith/internal/milestone"
	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/store"
)

var (
	// ErrBookNotFound is returned when the reading record does not exist.
	ErrBookNotFound = errors.New("book not found")
	// ErrInvalidPage is returned for a negative page number.
	ErrInvalidPage = errors.New("page must not be negative")
)

// Service tracks reading assignments and releases points as quartile
// milestones are crossed. Milestones only move forward: flipping back
// to re-read earlier pages never claws points back, and re-crossing a
// checkpoint never pays twice.
type Service struct {
	db     *sql.DB
	store  *store.ReadingStore
	badges *achievement.Engine
	logger *slog.Logger
}

func NewService(db *sql.DB, badges *achievement.Engine, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		store:  store.NewReadingStore(db),
		badges: badges,
		logger: logger,
	}
}

// Start registers a new reading assignment.
func (s *Service) Start(userID int64, bookTitle string, totalPages, totalPoints int) (*model.ReadingProgress, error) {
	if totalPages < 0 || totalPoints < 0 {
		return nil, fmt.Errorf("pages and points must not be negative")
	}
	return s.store.Create(userID, bookTitle, totalPages, totalPoints)
}

// Get returns one reading record, or ErrBookNotFound.
func (s *Service) Get(id int64) (*model.ReadingProgress, error) {
	book, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	return book, nil
}

// List returns a user's books, unfinished first.
func (s *Service) List(userID int64) ([]model.ReadingProgress, error) {
	return s.store.ListByUser(userID)
}

// UpdateResult reports what an update did: the refreshed record plus
// any points it released.
type UpdateResult struct {
	Book          *model.ReadingProgress `json:"book"`
	PointsAwarded int                    `json:"points_awarded"`
	NewBadges     []model.Badge          `json:"new_badges,omitempty"`
}

// UpdatePage records a new reading position. Crossing one or more
// quartile checkpoints credits the difference between the points
// released so far and what the record already paid out.
func (s *Service) UpdatePage(id int64, currentPage int) (*UpdateResult, error) {
	if currentPage < 0 {
		return nil, ErrInvalidPage
	}

	book, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, ErrBookNotFound
	}

	if currentPage > book.TotalPages {
		currentPage = book.TotalPages
	}

	calc := milestone.Calculate(currentPage, book.TotalPages, book.TotalPoints)

	newMilestone := book.LastMilestone
	newPoints := book.CurrentPoints
	awarded := 0
	if calc.Milestone > book.LastMilestone {
		newMilestone = calc.Milestone
		awarded = calc.Points - book.CurrentPoints
		newPoints = calc.Points
	}
	finished := book.IsFinished || newMilestone == 100

	result := &UpdateResult{PointsAwarded: awarded}

	if awarded > 0 {
		// The progress row records the points as already released, so it
		// must commit together with the ledger credit: a failed award
		// would otherwise leave the milestone marked paid.
		tx, err := s.db.Begin()
		if err != nil {
			return nil, fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		if err := store.UpdateProgressTx(tx, id, currentPage, newPoints, newMilestone, finished); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("Reading milestone %d%%: %s", newMilestone, book.BookTitle)
		if _, err := ledger.EarnTx(tx, book.UserID, awarded, desc, "reading", &book.ID); err != nil {
			return nil, fmt.Errorf("award reading points: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}

		// Badge evaluation is best effort; a failure here must not
		// undo a recorded milestone.
		badges, err := s.badges.CheckAndUnlock(book.UserID)
		if err != nil {
			s.logger.Error("badge check after reading update failed", "user_id", book.UserID, "error", err)
		} else {
			result.NewBadges = badges
		}
	} else {
		if err := s.store.UpdateProgress(id, currentPage, newPoints, newMilestone, finished); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	result.Book = updated
	return result, nil
}

// Delete removes a reading record. Points already released stay in the
// ledger.
func (s *Service) Delete(id int64) error {
	return s.store.Delete(id)
}
