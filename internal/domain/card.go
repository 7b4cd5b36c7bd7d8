package domain

import "time"

// Card is a single flashcard together with its spaced-repetition
// scheduling state. A brand-new card has IntervalDays 0, ReviewCount 0
// and no NextReviewAt, which makes it immediately due.
type Card struct {
	ID           string
	Front        string
	Back         string
	Context      string
	Fingerprint  string
	IntervalDays int
	EaseFactor   float64
	NextReviewAt *time.Time
	ReviewCount  int
}

// Due reports whether the card is due for review at the given time.
func (c Card) Due(now time.Time) bool {
	return c.NextReviewAt == nil || !c.NextReviewAt.After(now)
}
