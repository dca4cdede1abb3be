// Package review picks the card to show next.
package review

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// SelectNext returns a random card among those due at now. When none is due
// it returns the card due soonest, so a non-empty deck always yields a card.
// ok is false only for an empty deck. r may be nil.
func SelectNext(cards map[string]domain.Card, now time.Time, r *rand.Rand) (string, bool) {
	if len(cards) == 0 {
		return "", false
	}
	due := dueKeys(cards, now, func(domain.Card) bool { return true })
	if len(due) > 0 {
		return pick(due, r), true
	}
	return soonest(cards), true
}

func dueKeys(cards map[string]domain.Card, now time.Time, keep func(domain.Card) bool) []string {
	var keys []string
	for key, card := range cards {
		if card.IsDue(now) && keep(card) {
			keys = append(keys, key)
		}
	}
	// Map order is random but not uniform; sort so r alone decides.
	slices.Sort(keys)
	return keys
}

func pick(keys []string, r *rand.Rand) string {
	if r == nil {
		return keys[rand.IntN(len(keys))]
	}
	return keys[r.IntN(len(keys))]
}

// soonest returns the key with the earliest due time, ties broken by key.
func soonest(cards map[string]domain.Card) string {
	var best string
	var bestDue time.Time
	first := true
	for key, card := range cards {
		if first || card.Due.Before(bestDue) || (card.Due.Equal(bestDue) && key < best) {
			best, bestDue, first = key, card.Due, false
		}
	}
	return best
}
