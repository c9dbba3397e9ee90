package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pointsmith/pointsmith/internal/model"
)

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

const rewardCols = `id, group_id, template_id, title, description, point_cost, active, created_at`

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var groupID, templateID sql.NullInt64

	err := scanner.Scan(&r.ID, &groupID, &templateID, &r.Title, &r.Description, &r.PointCost, &r.Active, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	if groupID.Valid {
		r.GroupID = &groupID.Int64
	}
	if templateID.Valid {
		r.TemplateID = &templateID.Int64
	}
	return &r, nil
}

func (s *RewardStore) Create(r *model.Reward) (*model.Reward, error) {
	var gid, tid sql.NullInt64
	if r.GroupID != nil {
		gid = sql.NullInt64{Int64: *r.GroupID, Valid: true}
	}
	if r.TemplateID != nil {
		tid = sql.NullInt64{Int64: *r.TemplateID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO rewards (group_id, template_id, title, description, point_cost, active) VALUES (?, ?, ?, ?, ?, ?)`,
		gid, tid, r.Title, r.Description, r.PointCost, r.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// ListByGroup returns a group's reward catalog, cheapest first.
func (s *RewardStore) ListByGroup(groupID int64) ([]model.Reward, error) {
	return s.list(`SELECT `+rewardCols+` FROM rewards WHERE group_id = ? ORDER BY point_cost ASC, title ASC`, groupID)
}

// ListTemplates returns the global reward templates.
func (s *RewardStore) ListTemplates() ([]model.Reward, error) {
	return s.list(`SELECT ` + rewardCols + ` FROM rewards WHERE group_id IS NULL ORDER BY point_cost ASC, title ASC`)
}

func (s *RewardStore) list(query string, args ...any) ([]model.Reward, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

// ImportTemplate copies a global template into a group. Importing the
// same template twice is a no-op that returns the existing copy.
func (s *RewardStore) ImportTemplate(templateID, groupID int64) (*model.Reward, error) {
	tpl, err := s.GetByID(templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil || tpl.GroupID != nil {
		return nil, fmt.Errorf("reward template %d not found", templateID)
	}

	row := s.db.QueryRow(
		`SELECT `+rewardCols+` FROM rewards WHERE group_id = ? AND template_id = ?`,
		groupID, templateID,
	)
	existing, err := scanReward(row)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check existing import: %w", err)
	}

	imported := *tpl
	imported.GroupID = &groupID
	imported.TemplateID = &templateID
	return s.Create(&imported)
}

func (s *RewardStore) SetActive(id int64, active bool) error {
	_, err := s.db.Exec(`UPDATE rewards SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("set reward active: %w", err)
	}
	return nil
}

func (s *RewardStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// --- Redemption methods ---

const redemptionCols = `id, user_id, reward_id, status, child_comment, parent_comment, redeemed_at, resolved_at`

func scanRedemption(scanner interface{ Scan(...any) error }) (*model.RewardRedemption, error) {
	var r model.RewardRedemption
	var resolvedAt sql.NullTime

	err := scanner.Scan(&r.ID, &r.UserID, &r.RewardID, &r.Status, &r.ChildComment, &r.ParentComment, &r.RedeemedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	return &r, nil
}

// CreateRedemption writes a new pending request.
func (s *RewardStore) CreateRedemption(userID, rewardID int64, childComment string) (*model.RewardRedemption, error) {
	result, err := s.db.Exec(
		`INSERT INTO reward_redemptions (user_id, reward_id, child_comment) VALUES (?, ?, ?)`,
		userID, rewardID, childComment,
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRedemptionByID(id)
}

func (s *RewardStore) GetRedemptionByID(id int64) (*model.RewardRedemption, error) {
	row := s.db.QueryRow(`SELECT `+redemptionCols+` FROM reward_redemptions WHERE id = ?`, id)
	r, err := scanRedemption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return r, nil
}

// ResolveTx flips a pending redemption to approved or denied inside a
// caller-owned transaction. The status guard in the WHERE clause makes
// resolution first-wins: a second resolve affects zero rows.
func ResolveTx(tx *sql.Tx, id int64, status, parentComment string) (bool, error) {
	result, err := tx.Exec(
		`UPDATE reward_redemptions SET status = ?, parent_comment = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		status, parentComment, time.Now().UTC(), id, model.RedemptionPending,
	)
	if err != nil {
		return false, fmt.Errorf("resolve redemption: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// PendingByGroup returns a group's pending requests, newest first.
func (s *RewardStore) PendingByGroup(groupID int64) ([]model.RewardRedemption, error) {
	return s.listRedemptions(
		`SELECT r.id, r.user_id, r.reward_id, r.status, r.child_comment, r.parent_comment, r.redeemed_at, r.resolved_at
		 FROM reward_redemptions r
		 JOIN users u ON u.id = r.user_id
		 WHERE u.group_id = ? AND r.status = ?
		 ORDER BY r.redeemed_at DESC, r.id DESC`,
		groupID, model.RedemptionPending,
	)
}

// ListRedemptionsByUser returns a user's requests, newest first.
func (s *RewardStore) ListRedemptionsByUser(userID int64) ([]model.RewardRedemption, error) {
	return s.listRedemptions(
		`SELECT `+redemptionCols+` FROM reward_redemptions WHERE user_id = ? ORDER BY redeemed_at DESC, id DESC`,
		userID,
	)
}

func (s *RewardStore) listRedemptions(query string, args ...any) ([]model.RewardRedemption, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.RewardRedemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

// RedemptionStats summarizes a user's requests. PointsSpent counts only
// approved redemptions, at the reward's current cost.
func (s *RewardStore) RedemptionStats(userID int64) (*model.RedemptionStats, error) {
	stats := &model.RedemptionStats{ByStatus: make(map[string]int)}

	rows, err := s.db.Query(
		`SELECT rr.status, COUNT(*), COALESCE(SUM(CASE WHEN rr.status = ? THEN r.point_cost ELSE 0 END), 0)
		 FROM reward_redemptions rr
		 JOIN rewards r ON r.id = rr.reward_id
		 WHERE rr.user_id = ?
		 GROUP BY rr.status`,
		model.RedemptionApproved, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("redemption stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count, spent int
		if err := rows.Scan(&status, &count, &spent); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
		stats.PointsSpent += spent
	}
	return stats, rows.Err()
}
