package reading

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pointsmith/pointsmith/internal/achievement"
	"github.com/pointsmith/pointsmith/internal/database"
	"github.com/pointsmith/pointsmith/internal/ledger"
	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/store"
)

func setupReadingTest(t *testing.T) (*Service, *sql.DB, *model.User) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := store.NewUserStore(db)
	group, err := us.CreateGroup("Test Family")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	user, err := us.Create("Maya", "", model.RoleChild, &group.ID)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := achievement.NewEngine(db, logger)
	return NewService(db, engine, logger), db, user
}

func TestUpdatePageAwardsMilestonePoints(t *testing.T) {
	s, db, user := setupReadingTest(t)

	book, err := s.Start(user.ID, "Charlotte's Web", 100, 40)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Page 10: below the first checkpoint, nothing released.
	res, err := s.UpdatePage(book.ID, 10)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.PointsAwarded != 0 {
		t.Errorf("awarded = %d, want 0", res.PointsAwarded)
	}

	// Page 30: crosses 25%, releases a quarter of the points.
	res, err = s.UpdatePage(book.ID, 30)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.PointsAwarded != 10 {
		t.Errorf("awarded = %d, want 10", res.PointsAwarded)
	}
	if res.Book.LastMilestone != 25 || res.Book.CurrentPoints != 10 {
		t.Errorf("book = %+v", res.Book)
	}

	balance, _ := ledger.New(db).Balance(user.ID)
	if balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}
}

func TestUpdatePageSkipsStraightToHigherMilestone(t *testing.T) {
	s, db, user := setupReadingTest(t)

	book, _ := s.Start(user.ID, "Speed Read", 100, 40)

	// Jumping from 0 to 80% releases everything up to the 75% checkpoint.
	res, err := s.UpdatePage(book.ID, 80)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.PointsAwarded != 30 {
		t.Errorf("awarded = %d, want 30", res.PointsAwarded)
	}

	balance, _ := ledger.New(db).Balance(user.ID)
	if balance != 30 {
		t.Errorf("balance = %d, want 30", balance)
	}
}

func TestUpdatePageNeverPaysTwice(t *testing.T) {
	s, db, user := setupReadingTest(t)

	book, _ := s.Start(user.ID, "Re-reader", 100, 40)

	s.UpdatePage(book.ID, 60)

	// Flip back, then forward over the same checkpoint again.
	res, err := s.UpdatePage(book.ID, 10)
	if err != nil {
		t.Fatalf("update back: %v", err)
	}
	if res.PointsAwarded != 0 {
		t.Errorf("awarded on page back = %d, want 0", res.PointsAwarded)
	}
	if res.Book.LastMilestone != 50 {
		t.Errorf("milestone dropped to %d", res.Book.LastMilestone)
	}

	res, err = s.UpdatePage(book.ID, 55)
	if err != nil {
		t.Fatalf("update forward: %v", err)
	}
	if res.PointsAwarded != 0 {
		t.Errorf("awarded on re-cross = %d, want 0", res.PointsAwarded)
	}

	balance, _ := ledger.New(db).Balance(user.ID)
	if balance != 20 {
		t.Errorf("balance = %d, want 20", balance)
	}
}

func TestFinishingMarksBookDone(t *testing.T) {
	s, db, user := setupReadingTest(t)

	book, _ := s.Start(user.ID, "The End", 184, 40)

	res, err := s.UpdatePage(book.ID, 184)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.Book.IsFinished {
		t.Error("is_finished = false at 100%")
	}
	if res.PointsAwarded != 40 {
		t.Errorf("awarded = %d, want 40", res.PointsAwarded)
	}

	finished, _ := store.NewReadingStore(db).BooksFinished(user.ID)
	if finished != 1 {
		t.Errorf("finished = %d, want 1", finished)
	}
}

func TestUpdatePageClampsBeyondTotal(t *testing.T) {
	s, _, user := setupReadingTest(t)

	book, _ := s.Start(user.ID, "Short Book", 50, 20)

	res, err := s.UpdatePage(book.ID, 500)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Book.CurrentPage != 50 {
		t.Errorf("current_page = %d, want 50", res.Book.CurrentPage)
	}
	if res.PointsAwarded != 20 {
		t.Errorf("awarded = %d, want 20", res.PointsAwarded)
	}
}

func TestUpdatePageErrors(t *testing.T) {
	s, _, user := setupReadingTest(t)

	if _, err := s.UpdatePage(999, 10); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("err = %v, want ErrBookNotFound", err)
	}

	book, _ := s.Start(user.ID, "Book", 100, 40)
	if _, err := s.UpdatePage(book.ID, -1); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("err = %v, want ErrInvalidPage", err)
	}
}

func TestUpdatePageFailedAwardLeavesProgressUntouched(t *testing.T) {
	s, db, user := setupReadingTest(t)

	book, err := s.Start(user.ID, "Orphaned", 100, 40)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Strand the progress row: with foreign keys off the user row can
	// vanish without cascading, so the credit inside UpdatePage fails.
	if _, err := db.Exec(`PRAGMA foreign_keys = OFF`); err != nil {
		t.Fatalf("disable foreign keys: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM users WHERE id = ?`, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if _, err := s.UpdatePage(book.ID, 50); err == nil {
		t.Fatal("expected award to fail for missing user")
	}

	// The failed award must roll back the progress write with it.
	after, err := s.Get(book.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.LastMilestone != 0 || after.CurrentPoints != 0 || after.CurrentPage != 0 {
		t.Errorf("progress advanced despite failed award: %+v", after)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM point_transactions WHERE user_id = ?`, user.ID).Scan(&n); err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if n != 0 {
		t.Errorf("ledger has %d rows for the failed award, want 0", n)
	}
}

func TestMilestonePointsUnlockReadingBadges(t *testing.T) {
	s, db, user := setupReadingTest(t)

	groupID := *user.GroupID
	store.NewBadgeStore(db).Create(&model.Badge{
		GroupID:      &groupID,
		Name:         "Bookworm",
		AutoCriteria: `{"books_at_least": 1}`,
		UnlockType:   model.UnlockAutomatic,
		Enabled:      true,
	})

	book, _ := s.Start(user.ID, "One and Done", 100, 40)
	res, err := s.UpdatePage(book.ID, 100)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(res.NewBadges) != 1 || res.NewBadges[0].Name != "Bookworm" {
		t.Errorf("new badges = %+v, want Bookworm", res.NewBadges)
	}
}
