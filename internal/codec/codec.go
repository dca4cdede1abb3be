// Package codec converts a deck's cards to and from their stored form.
//
// Cards are stored as a snapshot: one base timestamp plus, per card, the
// triple [interval, ease, offset] where offset is the due time in whole
// minutes relative to the base. Decoding also understands every shape that
// earlier versions of the application wrote, see Shape.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Version is written into every snapshot produced by Encode.
const Version = 2

const minuteMs = int64(time.Minute / time.Millisecond)

// ErrMalformed is returned when stored data cannot be interpreted at all.
var ErrMalformed = errors.New("malformed card data")

// Snapshot is the stored representation of a card set.
type Snapshot struct {
	Version    int                 `json:"version,omitempty"`
	BaseTimeMs int64               `json:"base_time_ms"`
	Cards      map[string][3]int64 `json:"cards"`
	Content    map[string]Content  `json:"content,omitempty"`
}

// Content is the optional question/answer text of a card.
type Content struct {
	Question string `json:"q,omitempty"`
	Answer   string `json:"a,omitempty"`
}

// Encode builds a snapshot of cards relative to base.
func Encode(cards map[string]domain.Card, base time.Time) Snapshot {
	baseMs := base.UnixMilli()
	snap := Snapshot{
		Version:    Version,
		BaseTimeMs: baseMs,
		Cards:      make(map[string][3]int64, len(cards)),
	}
	for key, card := range cards {
		snap.Cards[key] = [3]int64{
			int64(card.Interval),
			int64(card.Ease),
			OffsetMinutes(card.Due.UnixMilli(), baseMs),
		}
		if card.HasContent() {
			if snap.Content == nil {
				snap.Content = make(map[string]Content)
			}
			snap.Content[key] = Content{Question: card.Question, Answer: card.Answer}
		}
	}
	return snap
}

// Marshal encodes cards relative to base and serializes the snapshot.
func Marshal(cards map[string]domain.Card, base time.Time) ([]byte, error) {
	data, err := json.Marshal(Encode(cards, base))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// OffsetMinutes is the due time expressed in whole minutes after base,
// rounded half up. It is negative for cards that were overdue at base.
func OffsetMinutes(dueMs, baseMs int64) int64 {
	return int64(math.Floor(float64(dueMs-baseMs)/float64(minuteMs) + 0.5))
}

// DueFromOffset reverses OffsetMinutes.
func DueFromOffset(baseMs, offset int64) time.Time {
	return time.UnixMilli(baseMs + offset*minuteMs)
}
