package session

import (
	"context"
	"fmt"
	"maps"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/knol"
)

// SeedOptions controls Seed.
type SeedOptions struct {
	// Prune deletes cards whose keys are absent from the entries.
	Prune bool
	// FirstRunOnly seeds only an empty deck, so cards the user deleted are
	// not brought back.
	FirstRunOnly bool
}

// SeedResult counts what Seed changed.
type SeedResult struct {
	Added   int
	Updated int
	Pruned  int
}

// Changed reports whether the deck was modified.
func (r SeedResult) Changed() bool {
	return r.Added+r.Updated+r.Pruned > 0
}

// Seed adds a new card for every entry whose key is missing from the deck.
// Existing cards keep their scheduling state; only their question and answer
// text is refreshed from the entry.
func (s *Session) Seed(ctx context.Context, entries []domain.SeedEntry, opts SeedOptions) (SeedResult, error) {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	if s.namespace == "" {
		s.mu.Unlock()
		return SeedResult{}, ErrNoNamespace
	}
	if opts.FirstRunOnly && len(s.cards) > 0 {
		s.mu.Unlock()
		return SeedResult{}, nil
	}

	var res SeedResult
	now := s.now()
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := knol.Normalize(e.Key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		card, exists := s.cards[key]
		if !exists {
			card = domain.NewCard(key, now)
			card.Question, card.Answer = e.Question, e.Answer
			s.cards[key] = card
			res.Added++
			continue
		}
		if (e.Question != "" || e.Answer != "") && (card.Question != e.Question || card.Answer != e.Answer) {
			card.Question, card.Answer = e.Question, e.Answer
			s.cards[key] = card
			res.Updated++
		}
	}

	if opts.Prune && len(seen) > 0 {
		for key := range s.cards {
			if !seen[key] {
				delete(s.cards, key)
				res.Pruned++
			}
		}
		if !seen[s.current] {
			s.current = ""
		}
	}
	ns, snapshot := s.namespace, maps.Clone(s.cards)
	s.mu.Unlock()

	s.log.Info("seed reconciliation complete", "namespace", ns, "entries", len(seen),
		"added", res.Added, "updated", res.Updated, "pruned", res.Pruned)
	if !res.Changed() {
		return res, nil
	}
	if err := s.store.Save(ctx, ns, snapshot); err != nil {
		return res, fmt.Errorf("failed to save seeded cards: %w", err)
	}
	return res, nil
}
