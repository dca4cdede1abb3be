package domain

import "time"

// Default scheduling values for a card that has never been reviewed.
const (
	NewInterval = 0
	DefaultEase = 250
	MinEase     = 130
)

// Card is the scheduling state of a single review item within one deck.
// Question and Answer are optional content carried by generic Q/A decks;
// character and vocabulary decks identify a card by its Key alone.
type Card struct {
	Key      string
	Interval int // minutes
	Ease     int // percent, 250 == 2.5x
	Due      time.Time
	Question string
	Answer   string
}

// NewCard returns a card that is due immediately and has never been reviewed.
func NewCard(key string, now time.Time) Card {
	return Card{
		Key:      key,
		Interval: NewInterval,
		Ease:     DefaultEase,
		Due:      now,
	}
}

// IsNew reports whether the card has never been successfully reviewed.
func (c Card) IsNew() bool {
	return c.Interval == NewInterval
}

// IsDue reports whether the card is eligible for review at now.
func (c Card) IsDue(now time.Time) bool {
	return !c.Due.After(now)
}

// HasContent reports whether the card carries question/answer text.
func (c Card) HasContent() bool {
	return c.Question != "" || c.Answer != ""
}

// ReviewLog records a single review event for a card.
// The Grade corresponds to the review buttons:
// 1: Again
// 2: Hard
// 3: Good
// 4: Easy
type ReviewLog struct {
	Namespace string
	CardKey   string
	Timestamp time.Time
	Grade     int
	Interval  int
	Ease      int
}
