package review

import (
	"fmt"
	"time"

	"github.com/knowit/knowit/internal/domain"
)

// Rating is the reviewer's qualitative answer to a card.
type Rating int

const (
	Forgot Rating = iota
	Hard
	Good
)

// String returns the wire value the review endpoint expects.
func (r Rating) String() string {
	switch r {
	case Forgot:
		return "forgot"
	case Hard:
		return "hard"
	case Good:
		return "good"
	}
	return "unknown"
}

// ParseRating converts a wire or CLI value into a Rating.
func ParseRating(s string) (Rating, error) {
	switch s {
	case "forgot":
		return Forgot, nil
	case "hard":
		return Hard, nil
	case "good":
		return Good, nil
	}
	return 0, fmt.Errorf("unknown rating %q", s)
}

// Next computes the card's state after one review at the given time.
//
// forgot drops the card back to the 1-day step: a forgotten card is
// due again tomorrow, not instantly. hard reapplies the current step.
// good advances one step, capped at the top of the ladder. A
// never-reviewed card sits at step 0, so its first hard keeps it
// immediately due while its first good or forgot moves it to 1 day.
func Next(card domain.Card, rating Rating, now time.Time) domain.Card {
	idx := StepIndex(card.IntervalDays)
	switch rating {
	case Forgot:
		idx = 1
	case Hard:
		// same interval reapplied
	case Good:
		if idx < len(Ladder)-1 {
			idx++
		}
	}

	next := card
	next.IntervalDays = Ladder[idx].Days
	due := now.Add(time.Duration(Ladder[idx].Days) * 24 * time.Hour)
	next.NextReviewAt = &due
	next.ReviewCount = card.ReviewCount + 1
	return next
}
