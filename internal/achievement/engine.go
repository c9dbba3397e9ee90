package achievement

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pointsmith/pointsmith/internal/ledger"
	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/store"
	"github.com/pointsmith/pointsmith/internal/streak"
)

var (
	// ErrBadgeNotFound is returned when the badge does not exist.
	ErrBadgeNotFound = errors.New("badge not found")
	// ErrAlreadyUnlocked is returned for a repeat manual unlock.
	ErrAlreadyUnlocked = errors.New("badge already unlocked")
	// ErrUserNotFound is returned when the user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Facts exposes the per-user aggregates criteria evaluate against.
// Each fact is loaded once, on first use, so checking a catalog of
// point-only badges never touches the reading tables or computes a
// streak.
type Facts struct {
	userID  int64
	ledger  *ledger.Ledger
	reading *store.ReadingStore
	now     time.Time

	balance *int
	tasks   *int
	books   *int
	pages   *int
	streak  *int
}

func (f *Facts) Balance() (int, error) {
	if f.balance == nil {
		b, err := f.ledger.Balance(f.userID)
		if err != nil {
			return 0, err
		}
		f.balance = &b
	}
	return *f.balance, nil
}

func (f *Facts) TaskCount() (int, error) {
	if f.tasks == nil {
		n, err := f.ledger.SourceCount(f.userID, "task")
		if err != nil {
			return 0, err
		}
		f.tasks = &n
	}
	return *f.tasks, nil
}

func (f *Facts) BooksFinished() (int, error) {
	if f.books == nil {
		n, err := f.reading.BooksFinished(f.userID)
		if err != nil {
			return 0, err
		}
		f.books = &n
	}
	return *f.books, nil
}

func (f *Facts) PagesRead() (int, error) {
	if f.pages == nil {
		n, err := f.reading.PagesRead(f.userID)
		if err != nil {
			return 0, err
		}
		f.pages = &n
	}
	return *f.pages, nil
}

func (f *Facts) Streak() (int, error) {
	if f.streak == nil {
		dates, err := f.ledger.ActivityDates(f.userID)
		if err != nil {
			return 0, err
		}
		s := streak.Compute(dates, f.now)
		f.streak = &s
	}
	return *f.streak, nil
}

// Engine evaluates a group's automatic badges against a user's facts
// and records unlocks. Unlocks are idempotent: the user_badges unique
// constraint plus the pre-check make a second pass a no-op.
type Engine struct {
	db      *sql.DB
	users   *store.UserStore
	badges  *store.BadgeStore
	reading *store.ReadingStore
	ledger  *ledger.Ledger
	logger  *slog.Logger
}

func NewEngine(db *sql.DB, logger *slog.Logger) *Engine {
	return &Engine{
		db:      db,
		users:   store.NewUserStore(db),
		badges:  store.NewBadgeStore(db),
		reading: store.NewReadingStore(db),
		ledger:  ledger.New(db),
		logger:  logger,
	}
}

// CheckAndUnlock evaluates every enabled automatic and hybrid badge in
// the user's group and unlocks the ones whose criteria are met. It
// returns the newly unlocked badges; already-earned badges are skipped,
// so calling it after every point award is safe.
func (e *Engine) CheckAndUnlock(userID int64) ([]model.Badge, error) {
	user, err := e.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.GroupID == nil {
		return nil, nil
	}

	candidates, err := e.badges.ListCheckable(*user.GroupID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	unlockedIDs, err := e.badges.UnlockedIDs(userID)
	if err != nil {
		return nil, err
	}

	// Activity dates come back as UTC days, so the streak reference
	// must be UTC too.
	facts := &Facts{userID: userID, ledger: e.ledger, reading: e.reading, now: time.Now().UTC()}

	var unlocked []model.Badge
	for _, badge := range candidates {
		if unlockedIDs[badge.ID] {
			continue
		}

		criteria, err := e.criteriaFor(&badge)
		if err != nil {
			// A malformed criterion disables one badge, not the whole pass.
			e.logger.Warn("skipping badge with bad criteria", "badge_id", badge.ID, "error", err)
			continue
		}
		if criteria.Empty() {
			continue
		}

		met, err := criteria.Met(facts)
		if err != nil {
			return nil, fmt.Errorf("evaluate badge %d: %w", badge.ID, err)
		}
		if !met {
			continue
		}

		if err := e.unlock(userID, &badge); err != nil {
			return nil, err
		}
		unlocked = append(unlocked, badge)
	}
	return unlocked, nil
}

// criteriaFor resolves a badge's effective criteria: the stored JSON
// when present, otherwise points_required as a balance threshold. A
// badge with neither (no criteria, points_required 0) yields empty
// criteria and is skipped by the checker rather than unlocking for
// everyone; such badges are only reachable through a manual unlock.
func (e *Engine) criteriaFor(badge *model.Badge) (*Criteria, error) {
	if badge.AutoCriteria != "" {
		return ParseCriteria(badge.AutoCriteria)
	}
	return &Criteria{PointsAtLeast: badge.PointsRequired}, nil
}

// unlock writes the user_badges row and the zero-amount ledger audit
// entry in one transaction.
func (e *Engine) unlock(userID int64, badge *model.Badge) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := store.CreateUnlockTx(tx, userID, badge.ID); err != nil {
		return err
	}
	if err := ledger.RecordBadgeUnlockTx(tx, userID, badge.ID, badge.Name); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	e.logger.Info("badge unlocked", "user_id", userID, "badge_id", badge.ID, "badge", badge.Name)
	return nil
}

// UnlockManually awards a manual or hybrid badge by parent action. Only
// badges in the user's own group catalog are eligible; badges of other
// groups and global template rows are invisible to the user and report
// ErrBadgeNotFound.
func (e *Engine) UnlockManually(userID, badgeID int64) (*model.Badge, error) {
	user, err := e.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	badge, err := e.badges.GetByID(badgeID)
	if err != nil {
		return nil, err
	}
	if badge == nil || badge.GroupID == nil || user.GroupID == nil || *badge.GroupID != *user.GroupID {
		return nil, ErrBadgeNotFound
	}

	unlockedIDs, err := e.badges.UnlockedIDs(userID)
	if err != nil {
		return nil, err
	}
	if unlockedIDs[badgeID] {
		return nil, ErrAlreadyUnlocked
	}

	if err := e.unlock(userID, badge); err != nil {
		return nil, err
	}
	return badge, nil
}

// Unlocked returns a user's earned badges, newest first.
func (e *Engine) Unlocked(userID int64) ([]model.UnlockedBadge, error) {
	return e.badges.ListUnlocked(userID)
}

// Stats summarizes a user's earned badges.
func (e *Engine) Stats(userID int64) (*model.BadgeStats, error) {
	unlocked, err := e.badges.ListUnlocked(userID)
	if err != nil {
		return nil, err
	}

	stats := &model.BadgeStats{
		ByCategory: make(map[string]int),
		ByRarity:   make(map[string]int),
	}
	for _, b := range unlocked {
		stats.Total++
		stats.ByCategory[b.Category]++
		stats.ByRarity[b.Rarity]++
	}

	recent := unlocked
	if len(recent) > 5 {
		recent = recent[:5]
	}
	stats.Recent = recent

	return stats, nil
}
