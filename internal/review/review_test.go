package review

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

var now = time.UnixMilli(1_700_000_000_000)

func card(interval int, due time.Duration) domain.Card {
	return domain.Card{Interval: interval, Ease: 250, Due: now.Add(due)}
}

func TestSelectNext(t *testing.T) {
	tests := []struct {
		name   string
		cards  map[string]domain.Card
		want   []string
		wantOK bool
	}{
		{name: "empty deck", cards: map[string]domain.Card{}, wantOK: false},
		{name: "nil deck", cards: nil, wantOK: false},
		{
			name:   "only due cards are eligible",
			cards:  map[string]domain.Card{"a": card(10, -time.Minute), "b": card(10, time.Hour), "c": card(0, 0)},
			want:   []string{"a", "c"},
			wantOK: true,
		},
		{
			name:   "nothing due falls back to soonest",
			cards:  map[string]domain.Card{"a": card(10, 2*time.Hour), "b": card(10, time.Hour), "c": card(10, 3*time.Hour)},
			want:   []string{"b"},
			wantOK: true,
		},
		{
			name:   "soonest tie broken by key",
			cards:  map[string]domain.Card{"z": card(10, time.Hour), "m": card(10, time.Hour)},
			want:   []string{"m"},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rand.New(rand.NewPCG(1, 2))
			for i := 0; i < 50; i++ {
				got, ok := SelectNext(tt.cards, now, r)
				if ok != tt.wantOK {
					t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
				}
				if !ok {
					if got != "" {
						t.Fatalf("got %q for empty deck", got)
					}
					continue
				}
				if !contains(tt.want, got) {
					t.Fatalf("got %q, want one of %v", got, tt.want)
				}
				if _, exists := tt.cards[got]; !exists {
					t.Fatalf("got %q which is not in the deck", got)
				}
			}
		})
	}
}

func TestSelectNextSpreadsOverDueCards(t *testing.T) {
	cards := map[string]domain.Card{}
	for _, k := range []string{"a", "b", "c", "d"} {
		cards[k] = card(10, -time.Minute)
	}
	r := rand.New(rand.NewPCG(7, 7))
	seen := map[string]int{}
	for i := 0; i < 400; i++ {
		key, _ := SelectNext(cards, now, r)
		seen[key]++
	}
	if len(seen) != 4 {
		t.Fatalf("picked %v, want all four due cards over 400 draws", seen)
	}
}

func TestSelectNextDeterministicForSeed(t *testing.T) {
	cards := map[string]domain.Card{"a": card(1, -1), "b": card(1, -1), "c": card(1, -1)}
	first, _ := SelectNext(cards, now, rand.New(rand.NewPCG(3, 4)))
	for i := 0; i < 10; i++ {
		got, _ := SelectNext(cards, now, rand.New(rand.NewPCG(3, 4)))
		if got != first {
			t.Fatalf("same seed gave %q then %q", first, got)
		}
	}
}

func TestTiered(t *testing.T) {
	entries := []domain.SeedEntry{
		{Key: "apple", Tier: "A1"},
		{Key: "ability", Tier: "a2"},
		{Key: "about", Tier: "A1"},
		{Key: "abandon", Tier: "B2"},
		{Key: "orphan", Tier: "Z9"},
	}

	t.Run("due reviews come first", func(t *testing.T) {
		sel := NewTiered(entries, nil)
		cards := map[string]domain.Card{
			"apple":   card(0, -time.Hour),
			"ability": card(10, -time.Minute),
		}
		got, ok := sel.Next(cards, now, rand.New(rand.NewPCG(1, 1)))
		if !ok || got != "ability" {
			t.Fatalf("got %q, %v, want ability", got, ok)
		}
	})

	t.Run("new cards follow tier then vocabulary order", func(t *testing.T) {
		sel := NewTiered(entries, nil)
		cards := map[string]domain.Card{
			"apple":   card(0, 0),
			"ability": card(0, 0),
			"about":   card(0, 0),
			"abandon": card(0, 0),
		}
		steps := []string{"apple", "about", "ability", "abandon"}
		for _, want := range steps {
			got, ok := sel.Next(cards, now, nil)
			if !ok || got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
			c := cards[got]
			c.Interval = 10
			c.Due = now.Add(10 * time.Minute)
			cards[got] = c
		}
		if sel.Level() != "B2" {
			t.Fatalf("level = %s, want B2", sel.Level())
		}
	})

	t.Run("level never regresses", func(t *testing.T) {
		sel := NewTiered(entries, nil)
		cards := map[string]domain.Card{
			"apple":   card(10, time.Hour),
			"about":   card(10, time.Hour),
			"ability": card(0, 2*time.Hour),
		}
		if got, _ := sel.Next(cards, now, nil); got != "ability" {
			t.Fatalf("got %q, want ability", got)
		}
		if sel.Level() != "A2" {
			t.Fatalf("level = %s, want A2", sel.Level())
		}

		cards["apple"] = card(0, 3*time.Hour)
		cards["ability"] = card(10, 4*time.Hour)
		got, _ := sel.Next(cards, now, nil)
		if got != "about" {
			t.Fatalf("got %q, want soonest-due fallback about", got)
		}
		if sel.Level() != "A2" {
			t.Fatalf("level regressed to %s", sel.Level())
		}
	})

	t.Run("empty deck", func(t *testing.T) {
		if _, ok := NewTiered(entries, nil).Next(nil, now, nil); ok {
			t.Fatalf("expected no card for an empty deck")
		}
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
