package model

import "time"

const (
	UnlockAutomatic = "automatic"
	UnlockManual    = "manual"
	UnlockHybrid    = "hybrid"
)

// Badge is either a global template (GroupID nil) or a group-scoped
// copy created by importing a template.
type Badge struct {
	ID             int64     `json:"id"`
	GroupID        *int64    `json:"group_id"`
	TemplateID     *int64    `json:"template_id,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Rarity         string    `json:"rarity"`
	PointsRequired int       `json:"points_required"`
	UnlockType     string    `json:"unlock_type"`
	AutoCriteria   string    `json:"auto_criteria,omitempty"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserBadge records a single unlock. Unique per (user, badge), never
// updated once written.
type UserBadge struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	BadgeID  int64     `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// UnlockedBadge pairs an unlock record with its badge definition.
type UnlockedBadge struct {
	Badge
	EarnedAt time.Time `json:"earned_at"`
}

// BadgeStats summarizes a user's unlocked badges.
type BadgeStats struct {
	Total      int             `json:"total"`
	ByCategory map[string]int  `json:"by_category"`
	ByRarity   map[string]int  `json:"by_rarity"`
	Recent     []UnlockedBadge `json:"recent"`
}
