package srs

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// Ratings lists the three buttons shown in a review, in display order.
var Ratings = []Rating{Again, Good, Easy}

func (r Rating) String() string {
	switch r {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

// ParseRating accepts either the button name or its number.
func ParseRating(s string) (Rating, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "again", "1":
		return Again, nil
	case "hard", "2":
		return Hard, nil
	case "good", "3":
		return Good, nil
	case "easy", "4":
		return Easy, nil
	}
	return 0, fmt.Errorf("unknown rating %q", s)
}

// Params holds the constants of the interval model. Intervals are in minutes,
// ease values are percentages.
type Params struct {
	AgainInterval   int
	MinGoodInterval int
	MinDayInterval  int
	EasyInitialDays int
	MinEase         int
	EasyMultiplier  float64
	HardMultiplier  float64
	AgainPenalty    int
	HardPenalty     int
	EasyBonus       int
}

// DefaultParams returns the constants used by every deck.
func DefaultParams() *Params {
	return &Params{
		AgainInterval:   1,
		MinGoodInterval: 10,
		MinDayInterval:  1440,
		EasyInitialDays: 3,
		MinEase:         130,
		EasyMultiplier:  1.3,
		HardMultiplier:  1.2,
		AgainPenalty:    20,
		HardPenalty:     15,
		EasyBonus:       20,
	}
}

// CardState is the part of a card the interval model reads and writes.
type CardState struct {
	Interval int
	Ease     int
}

// NextState calculates the interval and ease that follow a review.
// It must be given the state before the review is applied.
func (p *Params) NextState(current CardState, rating Rating) CardState {
	good := p.goodInterval(current)

	switch rating {
	case Again:
		return CardState{
			Interval: p.AgainInterval,
			Ease:     max(p.MinEase, current.Ease-p.AgainPenalty),
		}
	case Hard:
		return CardState{
			Interval: round((1 + good) / 2 * p.HardMultiplier),
			Ease:     max(p.MinEase, current.Ease-p.HardPenalty),
		}
	case Easy:
		interval := p.MinDayInterval * p.EasyInitialDays
		if current.Interval >= p.MinDayInterval {
			interval = round(good * p.EasyMultiplier)
		}
		return CardState{
			Interval: interval,
			Ease:     current.Ease + p.EasyBonus,
		}
	default:
		return CardState{
			Interval: round(good),
			Ease:     current.Ease,
		}
	}
}

// goodInterval is the unrounded interval a Good answer would produce.
func (p *Params) goodInterval(current CardState) float64 {
	if current.Interval < p.MinGoodInterval {
		return float64(p.MinGoodInterval)
	}
	return float64(current.Interval) * (float64(current.Ease) / 100)
}

// NextDue returns the time a card scheduled for interval minutes becomes due.
func NextDue(now time.Time, interval int) time.Time {
	return now.Add(time.Duration(interval) * time.Minute)
}

// round rounds half up, matching how stored intervals were always produced.
func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
