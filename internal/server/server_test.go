package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pointsmith/pointsmith/internal/database"
	"github.com/pointsmith/pointsmith/internal/logging"
	"github.com/pointsmith/pointsmith/internal/model"
)

func setupServerTest(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := New(db, Config{}, logging.Setup("error"))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func createGroupAndChild(t *testing.T, ts *httptest.Server) (model.Group, model.User) {
	t.Helper()

	var group model.Group
	if code := doJSON(t, ts, "POST", "/api/groups", map[string]string{"name": "Smiths"}, &group); code != http.StatusCreated {
		t.Fatalf("create group returned %d", code)
	}

	var child model.User
	code := doJSON(t, ts, "POST", "/api/users", map[string]any{
		"name": "Milo", "role": "child", "group_id": group.ID,
	}, &child)
	if code != http.StatusCreated {
		t.Fatalf("create user returned %d", code)
	}
	return group, child
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupServerTest(t)

	var out map[string]string
	if code := doJSON(t, ts, "GET", "/health", nil, &out); code != http.StatusOK {
		t.Fatalf("health returned %d", code)
	}
	if out["status"] != "ok" {
		t.Errorf("expected status ok, got %q", out["status"])
	}
}

func TestEarnAndBalanceOverHTTP(t *testing.T) {
	ts := setupServerTest(t)
	_, child := createGroupAndChild(t, ts)

	var res struct {
		Transaction model.PointTransaction `json:"transaction"`
	}
	code := doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/points/earn", child.ID), map[string]any{
		"amount": 25, "description": "Made bed", "source": "task",
	}, &res)
	if code != http.StatusCreated {
		t.Fatalf("earn returned %d", code)
	}
	if res.Transaction.Amount != 25 {
		t.Errorf("expected amount 25, got %d", res.Transaction.Amount)
	}

	var bal map[string]int
	if code := doJSON(t, ts, "GET", fmt.Sprintf("/api/users/%d/points/balance", child.ID), nil, &bal); code != http.StatusOK {
		t.Fatalf("balance returned %d", code)
	}
	if bal["balance"] != 25 {
		t.Errorf("expected balance 25, got %d", bal["balance"])
	}
}

func TestEarnValidationOverHTTP(t *testing.T) {
	ts := setupServerTest(t)
	_, child := createGroupAndChild(t, ts)

	code := doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/points/earn", child.ID), map[string]any{
		"amount": -5, "description": "nope", "source": "task",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative amount, got %d", code)
	}

	code = doJSON(t, ts, "POST", "/api/users/999/points/earn", map[string]any{
		"amount": 5, "description": "ghost", "source": "task",
	}, nil)
	if code != http.StatusNotFound {
		t.Errorf("expected 404 for missing user, got %d", code)
	}
}

func TestSpendInsufficientBalanceOverHTTP(t *testing.T) {
	ts := setupServerTest(t)
	_, child := createGroupAndChild(t, ts)

	code := doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/points/spend", child.ID), map[string]any{
		"amount": 10, "description": "Candy", "source": "manual",
	}, nil)
	if code != http.StatusConflict {
		t.Errorf("expected 409 for insufficient balance, got %d", code)
	}
}

func TestEarnUnlocksBadgeOverHTTP(t *testing.T) {
	ts := setupServerTest(t)
	group, child := createGroupAndChild(t, ts)

	var badge model.Badge
	code := doJSON(t, ts, "POST", "/api/badges", map[string]any{
		"group_id": group.ID, "name": "Half Century", "points_required": 50,
	}, &badge)
	if code != http.StatusCreated {
		t.Fatalf("create badge returned %d", code)
	}

	var res struct {
		NewBadges []model.Badge `json:"new_badges"`
	}
	code = doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/points/earn", child.ID), map[string]any{
		"amount": 60, "description": "Big chore day", "source": "task",
	}, &res)
	if code != http.StatusCreated {
		t.Fatalf("earn returned %d", code)
	}
	if len(res.NewBadges) != 1 || res.NewBadges[0].Name != "Half Century" {
		t.Fatalf("expected Half Century in new badges, got %+v", res.NewBadges)
	}

	var unlocked []model.UnlockedBadge
	if code := doJSON(t, ts, "GET", fmt.Sprintf("/api/users/%d/badges", child.ID), nil, &unlocked); code != http.StatusOK {
		t.Fatalf("list unlocked returned %d", code)
	}
	if len(unlocked) != 1 {
		t.Errorf("expected 1 unlocked badge, got %d", len(unlocked))
	}
}

func TestRedemptionFlowOverHTTP(t *testing.T) {
	ts := setupServerTest(t)
	group, child := createGroupAndChild(t, ts)

	var parent model.User
	code := doJSON(t, ts, "POST", "/api/users", map[string]any{
		"name": "Dana", "role": "parent", "group_id": group.ID,
	}, &parent)
	if code != http.StatusCreated {
		t.Fatalf("create parent returned %d", code)
	}

	var reward model.Reward
	code = doJSON(t, ts, "POST", "/api/rewards", map[string]any{
		"group_id": group.ID, "title": "Movie Night", "point_cost": 50,
	}, &reward)
	if code != http.StatusCreated {
		t.Fatalf("create reward returned %d", code)
	}

	// Not enough points yet.
	code = doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/redemptions", child.ID), map[string]any{
		"reward_id": reward.ID,
	}, nil)
	if code != http.StatusConflict {
		t.Fatalf("expected 409 before earning, got %d", code)
	}

	code = doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/points/earn", child.ID), map[string]any{
		"amount": 60, "description": "Chores", "source": "task",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("earn returned %d", code)
	}

	var red model.RewardRedemption
	code = doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/redemptions", child.ID), map[string]any{
		"reward_id": reward.ID, "comment": "Please!",
	}, &red)
	if code != http.StatusCreated {
		t.Fatalf("redeem returned %d", code)
	}
	if red.Status != model.RedemptionPending {
		t.Errorf("expected pending, got %q", red.Status)
	}

	var pending []model.RewardRedemption
	if code := doJSON(t, ts, "GET", fmt.Sprintf("/api/groups/%d/redemptions/pending", group.ID), nil, &pending); code != http.StatusOK {
		t.Fatalf("pending returned %d", code)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending redemption, got %d", len(pending))
	}

	var resolved model.RewardRedemption
	code = doJSON(t, ts, "POST", fmt.Sprintf("/api/redemptions/%d/resolve", red.ID), map[string]any{
		"status": "approved", "parent_id": parent.ID, "parent_comment": "Enjoy",
	}, &resolved)
	if code != http.StatusOK {
		t.Fatalf("resolve returned %d", code)
	}
	if resolved.Status != model.RedemptionApproved {
		t.Errorf("expected approved, got %q", resolved.Status)
	}

	var bal map[string]int
	doJSON(t, ts, "GET", fmt.Sprintf("/api/users/%d/points/balance", child.ID), nil, &bal)
	if bal["balance"] != 10 {
		t.Errorf("expected balance 10 after approval, got %d", bal["balance"])
	}

	// Already resolved.
	code = doJSON(t, ts, "POST", fmt.Sprintf("/api/redemptions/%d/resolve", red.ID), map[string]any{
		"status": "denied", "parent_id": parent.ID,
	}, nil)
	if code != http.StatusConflict {
		t.Errorf("expected 409 for second resolve, got %d", code)
	}
}

func TestResolveRequiresParentPIN(t *testing.T) {
	ts := setupServerTest(t)
	group, child := createGroupAndChild(t, ts)

	var parent model.User
	doJSON(t, ts, "POST", "/api/users", map[string]any{
		"name": "Dana", "role": "parent", "group_id": group.ID,
	}, &parent)

	code := doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/pin", parent.ID), map[string]string{"pin": "4321"}, nil)
	if code != http.StatusOK {
		t.Fatalf("set pin returned %d", code)
	}

	var reward model.Reward
	doJSON(t, ts, "POST", "/api/rewards", map[string]any{
		"group_id": group.ID, "title": "Ice Cream", "point_cost": 10,
	}, &reward)
	doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/points/earn", child.ID), map[string]any{
		"amount": 20, "description": "Chores", "source": "task",
	}, nil)

	var red model.RewardRedemption
	doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/redemptions", child.ID), map[string]any{
		"reward_id": reward.ID,
	}, &red)

	code = doJSON(t, ts, "POST", fmt.Sprintf("/api/redemptions/%d/resolve", red.ID), map[string]any{
		"status": "approved", "parent_id": parent.ID, "pin": "0000",
	}, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong PIN, got %d", code)
	}

	code = doJSON(t, ts, "POST", fmt.Sprintf("/api/redemptions/%d/resolve", red.ID), map[string]any{
		"status": "approved", "parent_id": parent.ID, "pin": "4321",
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 with correct PIN, got %d", code)
	}

	// A child cannot resolve.
	code = doJSON(t, ts, "POST", fmt.Sprintf("/api/redemptions/%d/resolve", red.ID), map[string]any{
		"status": "denied", "parent_id": child.ID,
	}, nil)
	if code != http.StatusForbidden {
		t.Errorf("expected 403 for child resolver, got %d", code)
	}
}

func TestReadingProgressOverHTTP(t *testing.T) {
	ts := setupServerTest(t)
	_, child := createGroupAndChild(t, ts)

	var book model.ReadingProgress
	code := doJSON(t, ts, "POST", fmt.Sprintf("/api/users/%d/books", child.ID), map[string]any{
		"book_title": "Hatchet", "total_pages": 200, "total_points": 40,
	}, &book)
	if code != http.StatusCreated {
		t.Fatalf("start book returned %d", code)
	}

	var res struct {
		Book          model.ReadingProgress `json:"book"`
		PointsAwarded int                   `json:"points_awarded"`
	}
	code = doJSON(t, ts, "PUT", fmt.Sprintf("/api/books/%d/progress", book.ID), map[string]any{
		"current_page": 100,
	}, &res)
	if code != http.StatusOK {
		t.Fatalf("update progress returned %d", code)
	}
	if res.PointsAwarded != 20 {
		t.Errorf("expected 20 points at halfway, got %d", res.PointsAwarded)
	}
	if res.Book.LastMilestone != 50 {
		t.Errorf("expected milestone 50, got %d", res.Book.LastMilestone)
	}

	var bal map[string]int
	doJSON(t, ts, "GET", fmt.Sprintf("/api/users/%d/points/balance", child.ID), nil, &bal)
	if bal["balance"] != 20 {
		t.Errorf("expected balance 20, got %d", bal["balance"])
	}
}

func TestBackupEndpointsDisabled(t *testing.T) {
	ts := setupServerTest(t)

	var status map[string]any
	if code := doJSON(t, ts, "GET", "/api/backups/status", nil, &status); code != http.StatusOK {
		t.Fatalf("status returned %d", code)
	}
	if status["enabled"] != false {
		t.Errorf("expected backups disabled, got %v", status["enabled"])
	}

	if code := doJSON(t, ts, "POST", "/api/backups/run", nil, nil); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for run without config, got %d", code)
	}
}
