// Package stats summarises a deck for the status line and statistics view.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

const (
	day          = 24 * time.Hour
	minutesInDay = 1440

	// ForecastDays is the length of the due forecast.
	ForecastDays = 7
)

// Status is the status line: cards due now, never-reviewed cards and the
// deck size.
type Status struct {
	Due   int `json:"due"`
	New   int `json:"new"`
	Total int `json:"total"`
}

// Count builds the status line. When excludeNew is set, cards that were
// never reviewed are not counted as due; vocabulary decks introduce those
// through tiers instead.
func Count(cards map[string]domain.Card, now time.Time, excludeNew bool) Status {
	s := Status{Total: len(cards)}
	for _, c := range cards {
		if c.IsNew() {
			s.New++
			if excludeNew {
				continue
			}
		}
		if c.IsDue(now) {
			s.Due++
		}
	}
	return s
}

// Maturity buckets cards by interval.
type Maturity struct {
	New      int `json:"new"`
	Learning int `json:"learning"`
	Young    int `json:"young"`
	Mature   int `json:"mature"`
}

// Maturities counts cards per bucket: new below one minute, learning below a
// day, young below 21 days, mature otherwise.
func Maturities(cards map[string]domain.Card) Maturity {
	var m Maturity
	for _, c := range cards {
		switch {
		case c.Interval < 1:
			m.New++
		case c.Interval < minutesInDay:
			m.Learning++
		case c.Interval < 21*minutesInDay:
			m.Young++
		default:
			m.Mature++
		}
	}
	return m
}

// Midnight returns the start of now's day in now's location.
func Midnight(now time.Time) time.Time {
	y, mo, d := now.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, now.Location())
}

// Forecast counts cards falling due on each of the next days, counted in
// whole days from local midnight. Cards overdue since before today are not
// counted.
func Forecast(cards map[string]domain.Card, now time.Time, days int) []int {
	counts := make([]int, days)
	start := Midnight(now)
	for _, c := range cards {
		if c.Due.Before(start) {
			continue
		}
		idx := int(c.Due.Sub(start) / day)
		if idx < days {
			counts[idx]++
		}
	}
	return counts
}

// ReviewSource lists review events. *storage.DB implements it.
type ReviewSource interface {
	ReviewsSince(ctx context.Context, namespace string, since time.Time) ([]domain.ReviewLog, error)
}

// Report is the full statistics view of a deck.
type Report struct {
	Namespace     string   `json:"namespace"`
	Status        Status   `json:"status"`
	Maturity      Maturity `json:"maturity"`
	Forecast      []int    `json:"forecast"`
	ReviewedToday int      `json:"reviewed_today"`
}

// Build computes a Report. reviews may be nil when no history is kept.
func Build(ctx context.Context, namespace string, cards map[string]domain.Card, now time.Time, excludeNew bool, reviews ReviewSource) (Report, error) {
	r := Report{
		Namespace: namespace,
		Status:    Count(cards, now, excludeNew),
		Maturity:  Maturities(cards),
		Forecast:  Forecast(cards, now, ForecastDays),
	}
	if reviews == nil {
		return r, nil
	}
	logs, err := reviews.ReviewsSince(ctx, namespace, Midnight(now))
	if err != nil {
		return r, fmt.Errorf("failed to count today's reviews: %w", err)
	}
	r.ReviewedToday = len(logs)
	return r, nil
}

// String renders the status line.
func (s Status) String() string {
	return fmt.Sprintf("Due: %d / New: %d / Total: %d", s.Due, s.New, s.Total)
}
