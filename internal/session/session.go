// Package session holds the cards of the active deck and applies review
// events to them. It replaces the ambient globals of a single-page app with
// one explicit object owned by the front-end.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/gateway"
	"github.com/conorfennell/knoldeck/internal/knol"
	"github.com/conorfennell/knoldeck/internal/review"
	"github.com/conorfennell/knoldeck/internal/srs"
)

var (
	ErrUnknownCard = errors.New("card not found")
	ErrNoNamespace = errors.New("no deck is open")
	ErrEmptyKey    = errors.New("card key is empty")
)

// Store loads and saves card sets. *gateway.Gateway implements it.
type Store interface {
	Load(ctx context.Context, namespace string) (gateway.Loaded, error)
	Save(ctx context.Context, namespace string, cards map[string]domain.Card) error
}

// History records review events. *storage.DB implements it.
type History interface {
	AppendReview(ctx context.Context, log domain.ReviewLog) error
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	Params  *srs.Params
	History History
	Now     func() time.Time
	Rand    *rand.Rand
	Logger  *slog.Logger
}

// Session is the review state of one open deck.
type Session struct {
	store   Store
	history History
	params  *srs.Params
	now     func() time.Time
	rand    *rand.Rand
	log     *slog.Logger

	events sync.Mutex // serialises events that mutate and persist the deck

	mu        sync.Mutex
	namespace string
	cards     map[string]domain.Card
	current   string
	tiered    *review.Tiered
	loaded    gateway.Loaded
}

// New creates a Session with no deck open.
func New(store Store, opts Options) *Session {
	s := &Session{
		store:   store,
		history: opts.History,
		params:  opts.Params,
		now:     opts.Now,
		rand:    opts.Rand,
		log:     opts.Logger,
	}
	if s.params == nil {
		s.params = srs.DefaultParams()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Open loads namespace and makes it the current deck. Any vocabulary set
// for the previous deck is dropped.
func (s *Session) Open(ctx context.Context, namespace string) (gateway.Loaded, error) {
	s.events.Lock()
	defer s.events.Unlock()

	if namespace == "" {
		return gateway.Loaded{}, ErrNoNamespace
	}
	loaded, err := s.store.Load(ctx, namespace)
	if err != nil {
		return loaded, fmt.Errorf("failed to open deck %s: %w", namespace, err)
	}
	if loaded.Malformed {
		s.log.Warn("stored cards could not be read, deck opened empty", "namespace", namespace)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespace = namespace
	s.cards = loaded.Cards
	if s.cards == nil {
		s.cards = map[string]domain.Card{}
	}
	s.current = ""
	s.tiered = nil
	s.loaded = loaded
	s.log.Info("opened deck", "namespace", namespace, "cards", len(s.cards),
		"source", loaded.Source.String(), "shape", loaded.Shape.String())
	return loaded, nil
}

// Reload reads the current deck again, discarding in-memory state. It is how
// a write conflict is resolved.
func (s *Session) Reload(ctx context.Context) (gateway.Loaded, error) {
	s.mu.Lock()
	ns := s.namespace
	s.mu.Unlock()
	return s.Open(ctx, ns)
}

// Close forgets the open deck. Events fail with ErrNoNamespace until the
// next Open.
func (s *Session) Close() {
	s.events.Lock()
	defer s.events.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespace = ""
	s.cards = map[string]domain.Card{}
	s.current = ""
	s.tiered = nil
	s.loaded = gateway.Loaded{}
}

// Namespace returns the open deck, or "" when none is open.
func (s *Session) Namespace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespace
}

// UseTiers switches selection to CEFR-tiered introduction of new cards,
// ordered by entries.
func (s *Session) UseTiers(entries []domain.SeedEntry, tiers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiered = review.NewTiered(entries, tiers)
}

// Loaded describes the last load of the open deck.
func (s *Session) Loaded() gateway.Loaded {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.loaded
	l.Cards = nil
	return l
}

// Cards returns a copy of the open deck's cards.
func (s *Session) Cards() map[string]domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.cards)
}

// Next selects the card to present and makes it current. ok is false when
// the deck is empty.
func (s *Session) Next() (domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var key string
	var ok bool
	if s.tiered != nil {
		key, ok = s.tiered.Next(s.cards, now, s.rand)
	} else {
		key, ok = review.SelectNext(s.cards, now, s.rand)
	}
	if !ok {
		s.current = ""
		return domain.Card{}, false
	}
	s.current = key
	return s.cards[key], true
}

// Current returns the card last returned by Next, if it still exists.
func (s *Session) Current() (domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[s.current]
	return card, ok && s.current != ""
}

// Preview returns the interval label each button would produce for key.
func (s *Session) Preview(key string) (map[srs.Rating]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[knol.Normalize(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCard, key)
	}
	state := srs.CardState{Interval: card.Interval, Ease: card.Ease}
	labels := make(map[srs.Rating]string, len(srs.Ratings))
	for _, r := range srs.Ratings {
		labels[r] = srs.FormatInterval(s.params.NextState(state, r).Interval)
	}
	return labels, nil
}

// Grade applies a review to key and persists the deck. The new state is kept
// in memory even when saving fails; the error is returned so the caller can
// surface it.
func (s *Session) Grade(ctx context.Context, key string, rating srs.Rating) (domain.Card, error) {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	if s.namespace == "" {
		s.mu.Unlock()
		return domain.Card{}, ErrNoNamespace
	}
	key = knol.Normalize(key)
	card, ok := s.cards[key]
	if !ok {
		s.mu.Unlock()
		return domain.Card{}, fmt.Errorf("%w: %s", ErrUnknownCard, key)
	}

	now := s.now()
	next := s.params.NextState(srs.CardState{Interval: card.Interval, Ease: card.Ease}, rating)
	card.Interval = next.Interval
	card.Ease = next.Ease
	card.Due = srs.NextDue(now, next.Interval)
	s.cards[key] = card
	if s.current == key {
		s.current = ""
	}
	ns, snapshot := s.namespace, maps.Clone(s.cards)
	s.mu.Unlock()

	if s.history != nil {
		entry := domain.ReviewLog{
			Namespace: ns,
			CardKey:   key,
			Timestamp: now,
			Grade:     int(rating),
			Interval:  card.Interval,
			Ease:      card.Ease,
		}
		if err := s.history.AppendReview(ctx, entry); err != nil {
			s.log.Warn("failed to record review", "namespace", ns, "card", key, "error", err)
		}
	}

	if err := s.store.Save(ctx, ns, snapshot); err != nil {
		return card, fmt.Errorf("failed to save review of %s: %w", key, err)
	}
	return card, nil
}

// Lookup finds a card by key, falling back to a case-insensitive match.
func (s *Session) Lookup(key string) (domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(key)
}

func (s *Session) lookup(key string) (domain.Card, bool) {
	k, ok := s.resolve(key)
	if !ok {
		return domain.Card{}, false
	}
	return s.cards[k], true
}

// resolve returns the stored key matching key exactly or, failing that,
// case-insensitively.
func (s *Session) resolve(key string) (string, bool) {
	key = knol.Normalize(key)
	if _, ok := s.cards[key]; ok {
		return key, true
	}
	folded := knol.Fold(key)
	for _, k := range slices.Sorted(maps.Keys(s.cards)) {
		if knol.Fold(k) == folded {
			return k, true
		}
	}
	return "", false
}

// Add creates a new card for key unless one exists. added is false when the
// key was already present; the existing card is returned untouched.
func (s *Session) Add(ctx context.Context, key string) (domain.Card, bool, error) {
	if knol.Normalize(key) == "" {
		return domain.Card{}, false, ErrEmptyKey
	}
	added, _, err := s.AddMany(ctx, []string{key})
	if err != nil {
		return domain.Card{}, false, err
	}
	card, _ := s.Lookup(key)
	return card, added == 1, nil
}

// AddMany creates cards for every key not yet in the deck and saves once.
// Existing cards are never reset.
func (s *Session) AddMany(ctx context.Context, keys []string) (added, ignored int, err error) {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	if s.namespace == "" {
		s.mu.Unlock()
		return 0, 0, ErrNoNamespace
	}
	now := s.now()
	for _, raw := range keys {
		key := knol.Normalize(raw)
		if key == "" {
			continue
		}
		if _, exists := s.lookup(key); exists {
			ignored++
			continue
		}
		s.cards[key] = domain.NewCard(key, now)
		added++
	}
	ns, snapshot := s.namespace, maps.Clone(s.cards)
	s.mu.Unlock()

	if added == 0 {
		return 0, ignored, nil
	}
	s.log.Info("added cards", "namespace", ns, "added", added, "ignored", ignored)
	if err := s.store.Save(ctx, ns, snapshot); err != nil {
		return added, ignored, fmt.Errorf("failed to save new cards: %w", err)
	}
	return added, ignored, nil
}

// Delete removes key and its progress from the deck.
func (s *Session) Delete(ctx context.Context, key string) error {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	if s.namespace == "" {
		s.mu.Unlock()
		return ErrNoNamespace
	}
	k, ok := s.resolve(key)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCard, key)
	}
	delete(s.cards, k)
	if s.current == k {
		s.current = ""
	}
	ns, snapshot := s.namespace, maps.Clone(s.cards)
	s.mu.Unlock()

	s.log.Info("deleted card", "namespace", ns, "card", k)
	if err := s.store.Save(ctx, ns, snapshot); err != nil {
		return fmt.Errorf("failed to save after deleting %s: %w", k, err)
	}
	return nil
}
