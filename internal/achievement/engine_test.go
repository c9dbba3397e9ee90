package achievement

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/pointsmith/pointsmith/internal/database"
	"github.com/pointsmith/pointsmith/internal/ledger"
	"github.com/pointsmith/pointsmith/internal/model"
	"github.com/pointsmith/pointsmith/internal/store"
)

func setupEngineTest(t *testing.T) (*Engine, *sql.DB, *model.User, int64) {
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
	return NewEngine(db, logger), db, user, group.ID
}

func createBadge(t *testing.T, db *sql.DB, b *model.Badge) *model.Badge {
	t.Helper()
	created, err := store.NewBadgeStore(db).Create(b)
	if err != nil {
		t.Fatalf("create badge: %v", err)
	}
	return created
}

func TestCheckAndUnlockPointsThreshold(t *testing.T) {
	e, db, user, groupID := setupEngineTest(t)

	createBadge(t, db, &model.Badge{
		GroupID:        &groupID,
		Name:           "First Steps",
		PointsRequired: 1,
		UnlockType:     model.UnlockAutomatic,
		Enabled:        true,
	})

	// Nothing earned yet: nothing unlocks.
	unlocked, err := e.CheckAndUnlock(user.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(unlocked) != 0 {
		t.Fatalf("unlocked %d badges before earning", len(unlocked))
	}

	l := ledger.New(db)
	if _, err := l.Earn(user.ID, 10, "first chore", "task", nil); err != nil {
		t.Fatalf("earn: %v", err)
	}

	unlocked, err = e.CheckAndUnlock(user.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].Name != "First Steps" {
		t.Fatalf("unlocked = %+v, want First Steps", unlocked)
	}

	// The unlock leaves a zero-amount audit entry without touching the balance.
	balance, _ := l.Balance(user.ID)
	if balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}
	history, _ := l.History(user.ID, 0)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Kind != model.KindBadgeUnlock || history[0].Amount != 0 {
		t.Errorf("audit entry = %+v", history[0])
	}

	// Second pass is idempotent.
	again, err := e.CheckAndUnlock(user.ID)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second check unlocked %d badges", len(again))
	}
}

func TestCheckAndUnlockJSONCriteria(t *testing.T) {
	e, db, user, groupID := setupEngineTest(t)

	createBadge(t, db, &model.Badge{
		GroupID:      &groupID,
		Name:         "Task Starter",
		AutoCriteria: `{"tasks_at_least": 2}`,
		UnlockType:   model.UnlockAutomatic,
		Enabled:      true,
	})

	l := ledger.New(db)
	l.Earn(user.ID, 5, "chore", "task", nil)

	unlocked, _ := e.CheckAndUnlock(user.ID)
	if len(unlocked) != 0 {
		t.Fatalf("unlocked after 1 task")
	}

	l.Earn(user.ID, 5, "chore", "task", nil)
	unlocked, err := e.CheckAndUnlock(user.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].Name != "Task Starter" {
		t.Fatalf("unlocked = %+v, want Task Starter", unlocked)
	}
}

func TestCheckAndUnlockStreakCriteria(t *testing.T) {
	e, db, user, groupID := setupEngineTest(t)

	createBadge(t, db, &model.Badge{
		GroupID:      &groupID,
		Name:         "On A Roll",
		AutoCriteria: `{"streak_at_least": 3}`,
		UnlockType:   model.UnlockAutomatic,
		Enabled:      true,
	})

	// Three consecutive days of earning, ending today.
	for days := 2; days >= 0; days-- {
		_, err := db.Exec(
			`INSERT INTO point_transactions (user_id, amount, kind, description, created_at)
			 VALUES (?, 5, 'earned', 'chore', datetime('now', ?))`,
			user.ID, fmt.Sprintf("-%d days", days),
		)
		if err != nil {
			t.Fatalf("seed transaction: %v", err)
		}
	}
	db.Exec(`UPDATE users SET points_balance = 15 WHERE id = ?`, user.ID)

	unlocked, err := e.CheckAndUnlock(user.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].Name != "On A Roll" {
		t.Fatalf("unlocked = %+v, want On A Roll", unlocked)
	}
}

func TestCheckAndUnlockBadCriteriaSkipsBadge(t *testing.T) {
	e, db, user, groupID := setupEngineTest(t)

	createBadge(t, db, &model.Badge{
		GroupID:      &groupID,
		Name:         "Broken",
		AutoCriteria: `{"no_such_key": 1}`,
		UnlockType:   model.UnlockAutomatic,
		Enabled:      true,
	})
	createBadge(t, db, &model.Badge{
		GroupID:        &groupID,
		Name:           "Fine",
		PointsRequired: 1,
		UnlockType:     model.UnlockAutomatic,
		Enabled:        true,
	})

	ledger.New(db).Earn(user.ID, 10, "chore", "task", nil)

	unlocked, err := e.CheckAndUnlock(user.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].Name != "Fine" {
		t.Fatalf("unlocked = %+v, want only Fine", unlocked)
	}
}

func TestCheckAndUnlockSkipsThresholdlessBadge(t *testing.T) {
	e, db, user, groupID := setupEngineTest(t)

	// No criteria and points_required 0: never auto-unlocks, even once
	// the user has activity.
	createBadge(t, db, &model.Badge{
		GroupID:    &groupID,
		Name:       "Free Lunch",
		UnlockType: model.UnlockAutomatic,
		Enabled:    true,
	})

	ledger.New(db).Earn(user.ID, 10, "chore", "task", nil)

	unlocked, err := e.CheckAndUnlock(user.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(unlocked) != 0 {
		t.Errorf("unlocked = %+v, want none", unlocked)
	}
}

func TestCheckAndUnlockUserNotFound(t *testing.T) {
	e, _, _, _ := setupEngineTest(t)

	if _, err := e.CheckAndUnlock(999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestUnlockManually(t *testing.T) {
	e, db, user, groupID := setupEngineTest(t)

	badge := createBadge(t, db, &model.Badge{
		GroupID:    &groupID,
		Name:       "Helping Hand",
		UnlockType: model.UnlockManual,
		Enabled:    true,
	})

	got, err := e.UnlockManually(user.ID, badge.ID)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if got.ID != badge.ID {
		t.Errorf("unlocked badge %d, want %d", got.ID, badge.ID)
	}

	if _, err := e.UnlockManually(user.ID, badge.ID); !errors.Is(err, ErrAlreadyUnlocked) {
		t.Errorf("err = %v, want ErrAlreadyUnlocked", err)
	}

	if _, err := e.UnlockManually(user.ID, 999); !errors.Is(err, ErrBadgeNotFound) {
		t.Errorf("err = %v, want ErrBadgeNotFound", err)
	}
}

func TestUnlockManuallyScopedToGroup(t *testing.T) {
	e, db, user, _ := setupEngineTest(t)

	us := store.NewUserStore(db)
	otherGroup, err := us.CreateGroup("Other Family")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	// A badge belonging to another group is invisible to this user.
	foreign := createBadge(t, db, &model.Badge{
		GroupID:    &otherGroup.ID,
		Name:       "Foreign Badge",
		UnlockType: model.UnlockManual,
		Enabled:    true,
	})
	if _, err := e.UnlockManually(user.ID, foreign.ID); !errors.Is(err, ErrBadgeNotFound) {
		t.Errorf("foreign-group badge: err = %v, want ErrBadgeNotFound", err)
	}

	// So is a global template row: templates must be imported into the
	// group before they can be unlocked.
	template := createBadge(t, db, &model.Badge{
		Name:       "Template Badge",
		UnlockType: model.UnlockManual,
		Enabled:    true,
	})
	if _, err := e.UnlockManually(user.ID, template.ID); !errors.Is(err, ErrBadgeNotFound) {
		t.Errorf("template badge: err = %v, want ErrBadgeNotFound", err)
	}

	unlocked, err := e.Unlocked(user.ID)
	if err != nil {
		t.Fatalf("unlocked: %v", err)
	}
	if len(unlocked) != 0 {
		t.Errorf("user has %d unlocks, want 0", len(unlocked))
	}
}

func TestUnlockManuallyUserNotFound(t *testing.T) {
	e, db, _, groupID := setupEngineTest(t)

	badge := createBadge(t, db, &model.Badge{
		GroupID:    &groupID,
		Name:       "Helping Hand",
		UnlockType: model.UnlockManual,
		Enabled:    true,
	})

	if _, err := e.UnlockManually(999, badge.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestBadgeStats(t *testing.T) {
	e, db, user, groupID := setupEngineTest(t)

	b1 := createBadge(t, db, &model.Badge{GroupID: &groupID, Name: "A", Category: "points", Rarity: "common", UnlockType: model.UnlockManual, Enabled: true})
	b2 := createBadge(t, db, &model.Badge{GroupID: &groupID, Name: "B", Category: "reading", Rarity: "rare", UnlockType: model.UnlockManual, Enabled: true})

	e.UnlockManually(user.ID, b1.ID)
	e.UnlockManually(user.ID, b2.ID)

	stats, err := e.Stats(user.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2", stats.Total)
	}
	if stats.ByCategory["points"] != 1 || stats.ByCategory["reading"] != 1 {
		t.Errorf("by_category = %v", stats.ByCategory)
	}
	if stats.ByRarity["rare"] != 1 {
		t.Errorf("by_rarity = %v", stats.ByRarity)
	}
	if len(stats.Recent) != 2 {
		t.Errorf("recent = %d, want 2", len(stats.Recent))
	}
}
