package store

import (
	"database/sql"
	"fmt"

	"github.com/pointsmith/pointsmith/internal/model"
)

type BadgeStore struct {
	db *sql.DB
}

func NewBadgeStore(db *sql.DB) *BadgeStore {
	return &BadgeStore{db: db}
}

const badgeCols = `id, group_id, template_id, name, description, category, rarity, points_required, unlock_type, COALESCE(auto_criteria, ''), enabled, created_at`

func scanBadge(scanner interface{ Scan(...any) error }) (*model.Badge, error) {
	var b model.Badge
	var groupID, templateID sql.NullInt64

	err := scanner.Scan(&b.ID, &groupID, &templateID, &b.Name, &b.Description, &b.Category,
		&b.Rarity, &b.PointsRequired, &b.UnlockType, &b.AutoCriteria, &b.Enabled, &b.CreatedAt)
	if err != nil {
		return nil, err
	}

	if groupID.Valid {
		b.GroupID = &groupID.Int64
	}
	if templateID.Valid {
		b.TemplateID = &templateID.Int64
	}
	return &b, nil
}

func (s *BadgeStore) Create(b *model.Badge) (*model.Badge, error) {
	var gid, tid sql.NullInt64
	if b.GroupID != nil {
		gid = sql.NullInt64{Int64: *b.GroupID, Valid: true}
	}
	if b.TemplateID != nil {
		tid = sql.NullInt64{Int64: *b.TemplateID, Valid: true}
	}
	var criteria sql.NullString
	if b.AutoCriteria != "" {
		criteria = sql.NullString{String: b.AutoCriteria, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO badges (group_id, template_id, name, description, category, rarity, points_required, unlock_type, auto_criteria, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gid, tid, b.Name, b.Description, b.Category, b.Rarity, b.PointsRequired, b.UnlockType, criteria, b.Enabled,
	)
	if err != nil {
		return nil, fmt.Errorf("insert badge: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *BadgeStore) GetByID(id int64) (*model.Badge, error) {
	row := s.db.QueryRow(`SELECT `+badgeCols+` FROM badges WHERE id = ?`, id)
	b, err := scanBadge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get badge: %w", err)
	}
	return b, nil
}

// ListByGroup returns a group's badge catalog, templates excluded.
func (s *BadgeStore) ListByGroup(groupID int64) ([]model.Badge, error) {
	return s.list(`SELECT `+badgeCols+` FROM badges WHERE group_id = ? ORDER BY category, name`, groupID)
}

// ListTemplates returns the global badge templates.
func (s *BadgeStore) ListTemplates() ([]model.Badge, error) {
	return s.list(`SELECT ` + badgeCols + ` FROM badges WHERE group_id IS NULL ORDER BY category, name`)
}

// ListCheckable returns the enabled badges the engine should evaluate
// for a group: its own automatic and hybrid badges.
func (s *BadgeStore) ListCheckable(groupID int64) ([]model.Badge, error) {
	return s.list(
		`SELECT `+badgeCols+` FROM badges WHERE group_id = ? AND enabled = 1 AND unlock_type IN (?, ?) ORDER BY id`,
		groupID, model.UnlockAutomatic, model.UnlockHybrid,
	)
}

func (s *BadgeStore) list(query string, args ...any) ([]model.Badge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var badges []model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, *b)
	}
	return badges, rows.Err()
}

// ImportTemplate copies a global template into a group. Importing the
// same template twice is a no-op that returns the existing copy.
func (s *BadgeStore) ImportTemplate(templateID, groupID int64) (*model.Badge, error) {
	tpl, err := s.GetByID(templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil || tpl.GroupID != nil {
		return nil, fmt.Errorf("badge template %d not found", templateID)
	}

	row := s.db.QueryRow(
		`SELECT `+badgeCols+` FROM badges WHERE group_id = ? AND template_id = ?`,
		groupID, templateID,
	)
	existing, err := scanBadge(row)
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

func (s *BadgeStore) SetEnabled(id int64, enabled bool) error {
	_, err := s.db.Exec(`UPDATE badges SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("set badge enabled: %w", err)
	}
	return nil
}

func (s *BadgeStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM badges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete badge: %w", err)
	}
	return nil
}

// --- Unlock queries ---

// UnlockedIDs returns the set of badge IDs a user has already earned.
func (s *BadgeStore) UnlockedIDs(userID int64) (map[int64]bool, error) {
	rows, err := s.db.Query(`SELECT badge_id FROM user_badges WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query unlocked ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan badge id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// ListUnlocked returns a user's earned badges, newest first.
func (s *BadgeStore) ListUnlocked(userID int64) ([]model.UnlockedBadge, error) {
	rows, err := s.db.Query(
		`SELECT b.id, b.group_id, b.template_id, b.name, b.description, b.category, b.rarity,
		        b.points_required, b.unlock_type, COALESCE(b.auto_criteria, ''), b.enabled, b.created_at,
		        ub.earned_at
		 FROM user_badges ub
		 JOIN badges b ON b.id = ub.badge_id
		 WHERE ub.user_id = ?
		 ORDER BY ub.earned_at DESC, ub.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list unlocked: %w", err)
	}
	defer rows.Close()

	var unlocked []model.UnlockedBadge
	for rows.Next() {
		var u model.UnlockedBadge
		var groupID, templateID sql.NullInt64
		err := rows.Scan(&u.ID, &groupID, &templateID, &u.Name, &u.Description, &u.Category,
			&u.Rarity, &u.PointsRequired, &u.UnlockType, &u.AutoCriteria, &u.Enabled, &u.CreatedAt,
			&u.EarnedAt)
		if err != nil {
			return nil, fmt.Errorf("scan unlocked badge: %w", err)
		}
		if groupID.Valid {
			u.GroupID = &groupID.Int64
		}
		if templateID.Valid {
			u.TemplateID = &templateID.Int64
		}
		unlocked = append(unlocked, u)
	}
	return unlocked, rows.Err()
}

// CreateUnlockTx writes the unlock row inside a caller-owned
// transaction, so it commits together with the ledger audit entry.
func CreateUnlockTx(tx *sql.Tx, userID, badgeID int64) error {
	_, err := tx.Exec(`INSERT INTO user_badges (user_id, badge_id) VALUES (?, ?)`, userID, badgeID)
	if err != nil {
		return fmt.Errorf("insert unlock: %w", err)
	}
	return nil
}
