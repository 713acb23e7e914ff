package progress

import (
	"slices"

	"github.com/julianstephens/horizon/internal/models"
)

// CalculateStreaks returns the length of the run of consecutive days ending
// at the latest day in days, and the longest such run. The current streak is
// not anchored to today: a run that ended a week ago is still reported.
// Duplicate days are ignored and days is not modified.
func CalculateStreaks(days []models.Day) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}

	sorted := slices.Clone(days)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	current, longest = 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] == 1 {
			current++
			longest = max(longest, current)
		} else {
			current = 1
		}
	}
	return current, longest
}
