package store

import (
	"testing"

	"github.com/pointsmith/pointsmith/internal/model"
)

func TestRewardTemplatesSeeded(t *testing.T) {
	db := setupStoreTestDB(t)
	s := NewRewardStore(db)

	templates, err := s.ListTemplates()
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	if len(templates) == 0 {
		t.Fatal("no seeded reward templates")
	}
}

func TestImportRewardTemplate(t *testing.T) {
	db := setupStoreTestDB(t)
	us := NewUserStore(db)
	s := NewRewardStore(db)

	group, _ := us.CreateGroup("Family")
	templates, _ := s.ListTemplates()
	tpl := templates[0]

	imported, err := s.ImportTemplate(tpl.ID, group.ID)
	if err != nil {
		t.Fatalf("import template: %v", err)
	}
	if imported.PointCost != tpl.PointCost {
		t.Errorf("point_cost = %d, want %d", imported.PointCost, tpl.PointCost)
	}

	again, err := s.ImportTemplate(tpl.ID, group.ID)
	if err != nil {
		t.Fatalf("re-import template: %v", err)
	}
	if again.ID != imported.ID {
		t.Errorf("re-import created a new reward: %d != %d", again.ID, imported.ID)
	}
}

func TestCreateAndResolveRedemption(t *testing.T) {
	db := setupStoreTestDB(t)
	us := NewUserStore(db)
	s := NewRewardStore(db)

	group, _ := us.CreateGroup("Family")
	user, _ := us.Create("Maya", "", model.RoleChild, &group.ID)
	reward, _ := s.Create(&model.Reward{GroupID: &group.ID, Title: "Movie Night", PointCost: 50, Active: true})

	red, err := s.CreateRedemption(user.ID, reward.ID, "please!")
	if err != nil {
		t.Fatalf("create redemption: %v", err)
	}
	if red.Status != model.RedemptionPending {
		t.Errorf("status = %q, want pending", red.Status)
	}
	if red.ChildComment != "please!" {
		t.Errorf("child_comment = %q", red.ChildComment)
	}
	if red.ResolvedAt != nil {
		t.Error("fresh redemption has resolved_at set")
	}

	tx, _ := db.Begin()
	ok, err := ResolveTx(tx, red.ID, model.RedemptionApproved, "have fun")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ok {
		t.Fatal("resolve affected no rows")
	}
	tx.Commit()

	got, _ := s.GetRedemptionByID(red.ID)
	if got.Status != model.RedemptionApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.ParentComment != "have fun" {
		t.Errorf("parent_comment = %q", got.ParentComment)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}

	// Second resolve hits the status guard.
	tx2, _ := db.Begin()
	ok, err = ResolveTx(tx2, red.ID, model.RedemptionDenied, "")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if ok {
		t.Error("second resolve should affect no rows")
	}
	tx2.Rollback()
}

func TestPendingByGroup(t *testing.T) {
	db := setupStoreTestDB(t)
	us := NewUserStore(db)
	s := NewRewardStore(db)

	groupA, _ := us.CreateGroup("A")
	groupB, _ := us.CreateGroup("B")
	userA, _ := us.Create("A-Kid", "", model.RoleChild, &groupA.ID)
	userB, _ := us.Create("B-Kid", "", model.RoleChild, &groupB.ID)
	reward, _ := s.Create(&model.Reward{GroupID: &groupA.ID, Title: "Treat", PointCost: 10, Active: true})

	s.CreateRedemption(userA.ID, reward.ID, "")
	s.CreateRedemption(userB.ID, reward.ID, "")

	pending, err := s.PendingByGroup(groupA.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].UserID != userA.ID {
		t.Errorf("pending user = %d, want %d", pending[0].UserID, userA.ID)
	}
}

func TestRedemptionStats(t *testing.T) {
	db := setupStoreTestDB(t)
	us := NewUserStore(db)
	s := NewRewardStore(db)

	group, _ := us.CreateGroup("Family")
	user, _ := us.Create("Maya", "", model.RoleChild, &group.ID)
	reward, _ := s.Create(&model.Reward{GroupID: &group.ID, Title: "Treat", PointCost: 25, Active: true})

	r1, _ := s.CreateRedemption(user.ID, reward.ID, "")
	r2, _ := s.CreateRedemption(user.ID, reward.ID, "")
	s.CreateRedemption(user.ID, reward.ID, "")

	tx, _ := db.Begin()
	ResolveTx(tx, r1.ID, model.RedemptionApproved, "")
	ResolveTx(tx, r2.ID, model.RedemptionDenied, "")
	tx.Commit()

	stats, err := s.RedemptionStats(user.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.ByStatus[model.RedemptionApproved] != 1 || stats.ByStatus[model.RedemptionDenied] != 1 || stats.ByStatus[model.RedemptionPending] != 1 {
		t.Errorf("by_status = %v", stats.ByStatus)
	}
	if stats.PointsSpent != 25 {
		t.Errorf("points_spent = %d, want 25", stats.PointsSpent)
	}
}
