package store

import (
	"database/sql"
	"fmt"

	"github.com/pointsmith/pointsmith/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// --- Group methods ---

func (s *UserStore) CreateGroup(name string) (*model.Group, error) {
	result, err := s.db.Exec(`INSERT INTO groups (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetGroupByID(id)
}

func (s *UserStore) GetGroupByID(id int64) (*model.Group, error) {
	var g model.Group
	err := s.db.QueryRow(`SELECT id, name, created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

// --- User methods ---

const userCols = `id, name, COALESCE(email, ''), role, group_id, points_balance, pin IS NOT NULL, created_at, updated_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var groupID sql.NullInt64

	err := scanner.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &groupID, &u.PointsBalance, &u.HasPIN, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if groupID.Valid {
		u.GroupID = &groupID.Int64
	}
	return &u, nil
}

func (s *UserStore) Create(name, email, role string, groupID *int64) (*model.User, error) {
	if role != model.RoleParent && role != model.RoleChild {
		role = model.RoleChild
	}

	var gid sql.NullInt64
	if groupID != nil {
		gid = sql.NullInt64{Int64: *groupID, Valid: true}
	}
	var em sql.NullString
	if email != "" {
		em = sql.NullString{String: email, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO users (name, email, role, group_id) VALUES (?, ?, ?, ?)`,
		name, em, role, gid,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListByGroup returns a group's users, parents first, then by name.
func (s *UserStore) ListByGroup(groupID int64) ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT `+userCols+` FROM users WHERE group_id = ? ORDER BY role DESC, name ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Parents returns the group's parent/teacher users.
func (s *UserStore) Parents(groupID int64) ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT `+userCols+` FROM users WHERE group_id = ? AND role = ? ORDER BY name ASC`,
		groupID, model.RoleParent,
	)
	if err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Leaderboard returns a group's balances, highest first.
func (s *UserStore) Leaderboard(groupID int64) ([]model.LeaderboardEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, name, points_balance FROM users WHERE group_id = ? AND role = ? ORDER BY points_balance DESC, name ASC`,
		groupID, model.RoleChild,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Balance); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// --- PIN methods (parents gate redemption approval with a PIN) ---

func (s *UserStore) SetPIN(id int64, hashedPIN string) error {
	_, err := s.db.Exec(`UPDATE users SET pin = ? WHERE id = ?`, hashedPIN, id)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *UserStore) ClearPIN(id int64) error {
	_, err := s.db.Exec(`UPDATE users SET pin = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

func (s *UserStore) GetPINHash(id int64) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRow(`SELECT pin FROM users WHERE id = ?`, id).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("user not found")
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	if !pin.Valid {
		return "", nil
	}
	return pin.String, nil
}
