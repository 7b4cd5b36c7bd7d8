package review

// Step is one milestone on the fixed spacing ladder.
type Step struct {
	Days   int
	Period string
}

// Ladder is the interval ladder shared by the review transition and
// the timeline bucketing. Keeping it in one place is what guarantees
// the two never drift apart. Index 0 is the resting state of a
// brand-new card: zero days, immediately due.
var Ladder = []Step{
	{Days: 0, Period: "due"},
	{Days: 1, Period: "1_day"},
	{Days: 7, Period: "1_week"},
	{Days: 30, Period: "1_month"},
	{Days: 90, Period: "3_months"},
	{Days: 180, Period: "6_months"},
	{Days: 365, Period: "12_months"},
	{Days: 547, Period: "18_months"},
	{Days: 730, Period: "24_months"},
	{Days: 1095, Period: "36_months"},
}

// StepIndex maps a stored interval back to its ladder index. Intervals
// that are not exact milestones (possible if the server ever changes
// its table) clamp to the largest milestone not exceeding them.
func StepIndex(intervalDays int) int {
	idx := 0
	for i, s := range Ladder {
		if s.Days <= intervalDays {
			idx = i
		}
	}
	return idx
}
