package achievement

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Criteria is the closed set of thresholds an automatic badge can
// check. Zero-valued fields are absent; all present thresholds must be
// met for the badge to unlock.
type Criteria struct {
	PointsAtLeast int `json:"points_at_least,omitempty"`
	TasksAtLeast  int `json:"tasks_at_least,omitempty"`
	BooksAtLeast  int `json:"books_at_least,omitempty"`
	PagesAtLeast  int `json:"pages_at_least,omitempty"`
	StreakAtLeast int `json:"streak_at_least,omitempty"`
}

// ParseCriteria decodes a badge's auto_criteria JSON. Unknown keys are
// rejected so a typo in a stored criterion surfaces instead of
// silently never unlocking.
func ParseCriteria(raw string) (*Criteria, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var c Criteria
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse criteria: %w", err)
	}
	if c.PointsAtLeast < 0 || c.TasksAtLeast < 0 || c.BooksAtLeast < 0 || c.PagesAtLeast < 0 || c.StreakAtLeast < 0 {
		return nil, fmt.Errorf("parse criteria: negative threshold")
	}
	return &c, nil
}

// Empty reports whether no threshold is set.
func (c *Criteria) Empty() bool {
	return c.PointsAtLeast == 0 && c.TasksAtLeast == 0 && c.BooksAtLeast == 0 &&
		c.PagesAtLeast == 0 && c.StreakAtLeast == 0
}

// NeedsStreak reports whether evaluating this criteria requires the
// streak, which is the one fact that is expensive to compute.
func (c *Criteria) NeedsStreak() bool {
	return c.StreakAtLeast > 0
}

// Met evaluates the criteria against a user's facts.
func (c *Criteria) Met(f *Facts) (bool, error) {
	if c.PointsAtLeast > 0 {
		balance, err := f.Balance()
		if err != nil {
			return false, err
		}
		if balance < c.PointsAtLeast {
			return false, nil
		}
	}
	if c.TasksAtLeast > 0 {
		tasks, err := f.TaskCount()
		if err != nil {
			return false, err
		}
		if tasks < c.TasksAtLeast {
			return false, nil
		}
	}
	if c.BooksAtLeast > 0 {
		books, err := f.BooksFinished()
		if err != nil {
			return false, err
		}
		if books < c.BooksAtLeast {
			return false, nil
		}
	}
	if c.PagesAtLeast > 0 {
		pages, err := f.PagesRead()
		if err != nil {
			return false, err
		}
		if pages < c.PagesAtLeast {
			return false, nil
		}
	}
	if c.StreakAtLeast > 0 {
		streak, err := f.Streak()
		if err != nil {
			return false, err
		}
		if streak < c.StreakAtLeast {
			return false, nil
		}
	}
	return true, nil
}
