package milestone

// Reading points are released at fixed quartile checkpoints. Crossing
// a checkpoint unlocks a quarter of the assignment's total points.
var checkpoints = []int{0, 25, 50, 75, 100}

// Result describes where a reading assignment sits on the quartile
// scale and what the next checkpoint is worth.
type Result struct {
	Milestone     int `json:"milestone"`
	Points        int `json:"points"`
	NextMilestone int `json:"next_milestone"`
	NextPoints    int `json:"next_points"`
}

// Calculate computes the highest milestone reached at currentPage and
// the points it has released. totalPages of 0 is a degenerate
// assignment, not an error: everything stays at zero.
func Calculate(currentPage, totalPages, totalPoints int) Result {
	if totalPages <= 0 {
		return Result{}
	}

	percentage := currentPage * 100 / totalPages

	reached := 0
	for _, cp := range checkpoints {
		if cp <= percentage {
			reached = cp
		}
	}

	r := Result{
		Milestone: reached,
		Points:    pointsAt(reached, totalPoints),
	}

	if reached < 100 {
		r.NextMilestone = reached + 25
	} else {
		r.NextMilestone = 100
	}
	r.NextPoints = pointsAt(r.NextMilestone, totalPoints)

	return r
}

// pointsAt returns floor(quartiles-reached * totalPoints/4), written
// as a single integer division to avoid rounding twice.
func pointsAt(ms, totalPoints int) int {
	return ms * totalPoints / 100
}
