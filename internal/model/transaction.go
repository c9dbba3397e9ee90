package model

import "time"

// Transaction kinds. Every point movement carries exactly one.
const (
	KindEarned      = "earned"
	KindSpent       = "spent"
	KindBonus       = "bonus"
	KindBadgeUnlock = "badge_unlock"
	KindQuizBonus   = "quiz_bonus"
)

// PointTransaction is one immutable entry in the points ledger.
// Spent transactions carry a negative amount; badge unlocks carry zero.
type PointTransaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Amount      int       `json:"amount"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Source      string    `json:"source,omitempty"`
	SourceID    *int64    `json:"source_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LedgerStats summarizes a user's point activity.
type LedgerStats struct {
	TotalEarned int                `json:"total_earned"`
	TotalSpent  int                `json:"total_spent"`
	ByKind      map[string]int     `json:"by_kind"`
	BySource    map[string]int     `json:"by_source"`
	Recent      []PointTransaction `json:"recent"`
}
