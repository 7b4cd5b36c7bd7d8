package review

import (
	"time"

	"github.com/knowit/knowit/internal/domain"
)

// Bucket groups the cards scheduled at the same milestone.
type Bucket struct {
	Period string
	Count  int
	Cards  []domain.Card
}

// Timeline is the full due/upcoming partition of a card set.
type Timeline struct {
	Buckets       []Bucket
	TotalDue      int
	TotalUpcoming int
}

// BuildTimeline partitions cards into the due bucket and one bucket
// per upcoming milestone. A card with no schedule, or one whose due
// time has passed, is due. Everything else is bucketed by the
// milestone it is currently scheduled at, not by a recomputed
// days-until-due: a card due in 2 days whose last interval was
// 3 months shows under 3_months. That mirrors the server's
// presentation of scheduling cadence.
//
// Every period appears in ladder order, empty ones with Count 0, and
// cards keep their input order within a bucket.
func BuildTimeline(cards []domain.Card, now time.Time) Timeline {
	buckets := make([]Bucket, len(Ladder))
	for i, s := range Ladder {
		buckets[i] = Bucket{Period: s.Period}
	}

	for _, c := range cards {
		i := 0
		if !c.Due(now) {
			i = StepIndex(c.IntervalDays)
		}
		buckets[i].Cards = append(buckets[i].Cards, c)
		buckets[i].Count++
	}

	tl := Timeline{Buckets: buckets, TotalDue: buckets[0].Count}
	// TotalUpcoming counts the whole scheduled set, due bucket included.
	for _, b := range buckets {
		tl.TotalUpcoming += b.Count
	}
	return tl
}
