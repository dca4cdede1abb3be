package review

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// DefaultTiers is the CEFR order new vocabulary is introduced in.
var DefaultTiers = []string{"A1", "A2", "B1", "B2", "C1"}

// Tiered selects cards for a leveled vocabulary deck. Reviews that are due
// come first. Otherwise the first unreviewed word of the lowest unfinished
// tier is introduced, in vocabulary order. The current tier only moves up.
type Tiered struct {
	tiers  []string
	order  []string
	tierOf map[string]int
	level  int
}

// NewTiered builds a selector over entries, in their given order. Entries
// whose tier is not in tiers take no part in introduction.
func NewTiered(entries []domain.SeedEntry, tiers []string) *Tiered {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	index := make(map[string]int, len(tiers))
	for i, t := range tiers {
		index[strings.ToUpper(t)] = i
	}
	t := &Tiered{tiers: tiers, tierOf: make(map[string]int, len(entries))}
	for _, e := range entries {
		i, ok := index[strings.ToUpper(strings.TrimSpace(e.Tier))]
		if !ok {
			continue
		}
		if _, seen := t.tierOf[e.Key]; seen {
			continue
		}
		t.tierOf[e.Key] = i
		t.order = append(t.order, e.Key)
	}
	return t
}

// Level returns the tier new cards are currently drawn from.
func (t *Tiered) Level() string {
	return t.tiers[t.level]
}

// Next returns the key to present. A card counts as due only once it has
// been reviewed; with nothing due and nothing left to introduce it falls back
// to the card due soonest.
func (t *Tiered) Next(cards map[string]domain.Card, now time.Time, r *rand.Rand) (string, bool) {
	if len(cards) == 0 {
		return "", false
	}
	due := dueKeys(cards, now, func(c domain.Card) bool { return !c.IsNew() })
	if len(due) > 0 {
		return pick(due, r), true
	}

	for level := t.level; level < len(t.tiers); level++ {
		for _, key := range t.order {
			if t.tierOf[key] != level {
				continue
			}
			if card, ok := cards[key]; ok && card.IsNew() {
				t.level = level
				return key, true
			}
		}
	}
	return soonest(cards), true
}
