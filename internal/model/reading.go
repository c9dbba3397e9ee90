package model

import "time"

// ReadingProgress tracks one reading assignment. LastMilestone is one
// of 0/25/50/75/100 and never decreases.
type ReadingProgress struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	BookTitle     string    `json:"book_title"`
	TotalPages    int       `json:"total_pages"`
	TotalPoints   int       `json:"total_points"`
	CurrentPage   int       `json:"current_page"`
	CurrentPoints int       `json:"current_points"`
	LastMilestone int       `json:"last_milestone"`
	IsFinished    bool      `json:"is_finished"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
