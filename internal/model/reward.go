package model

import "time"

const (
	RedemptionPending  = "pending"
	RedemptionApproved = "approved"
	RedemptionDenied   = "denied"
)

// Reward is either a global template (GroupID nil) or a group-scoped
// copy created by importing a template.
type Reward struct {
	ID          int64     `json:"id"`
	GroupID     *int64    `json:"group_id"`
	TemplateID  *int64    `json:"template_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PointCost   int       `json:"point_cost"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// RewardRedemption is created pending and resolved exactly once to
// approved or denied. Points are deducted at approval, not at request.
type RewardRedemption struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	RewardID      int64      `json:"reward_id"`
	Status        string     `json:"status"`
	ChildComment  string     `json:"child_comment"`
	ParentComment string     `json:"parent_comment"`
	RedeemedAt    time.Time  `json:"redeemed_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// RedemptionStats summarizes a user's redemption history.
type RedemptionStats struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	PointsSpent int            `json:"points_spent"`
}
