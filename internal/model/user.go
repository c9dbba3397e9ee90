package model

import "time"

const (
	RoleParent = "parent"
	RoleChild  = "child"
)

type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Role          string    `json:"role"`
	GroupID       *int64    `json:"group_id"`
	PointsBalance int       `json:"points_balance"`
	HasPIN        bool      `json:"has_pin"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LeaderboardEntry is one row of the group points leaderboard.
type LeaderboardEntry struct {
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Balance int    `json:"balance"`
}
