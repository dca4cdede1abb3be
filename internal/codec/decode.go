package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/knol"
)

// Shape identifies which stored layout a payload used.
type Shape int

const (
	// ShapeInvalid means the payload could not be parsed.
	ShapeInvalid Shape = iota
	// ShapeEmpty means there was no stored data: an empty payload, null, or {}.
	ShapeEmpty
	// ShapeVersioned is the current layout written by Encode.
	ShapeVersioned
	// ShapeOffset is {base_time_ms, cards: {key: [interval, ease, offset]}}.
	ShapeOffset
	// ShapeDeckOffset is {base_time_ms, cards: {id: {question, answer, data: [interval, ease, offset]}}}.
	ShapeDeckOffset
	// ShapeAbsolute is {key: [interval, ease, due]} with an absolute due in epoch ms.
	ShapeAbsolute
	// ShapeObject is {key: {interval, ease, due, ...}}, the oldest layout.
	ShapeObject
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeVersioned:
		return "versioned"
	case ShapeOffset:
		return "offset"
	case ShapeDeckOffset:
		return "deck-offset"
	case ShapeAbsolute:
		return "absolute"
	case ShapeObject:
		return "object"
	default:
		return "invalid"
	}
}

// Decoded is the result of decoding a stored payload. Cards is never nil.
type Decoded struct {
	Cards   map[string]domain.Card
	Shape   Shape
	Skipped []string // keys whose entries could not be read
}

// NeedsMigration reports whether the payload used a layout without a
// version field that should be rewritten in the current one.
func (d Decoded) NeedsMigration() bool {
	switch d.Shape {
	case ShapeOffset, ShapeDeckOffset, ShapeAbsolute, ShapeObject:
		return true
	}
	return false
}

// Decode reads any known stored layout. now is used as the due time of
// legacy object cards that never recorded one.
//
// A payload that cannot be parsed yields an empty card set, ShapeInvalid and
// an error wrapping ErrMalformed, so callers can tell it apart from a
// genuinely empty deck.
func Decode(data []byte, now time.Time) (Decoded, error) {
	empty := Decoded{Cards: map[string]domain.Card{}, Shape: ShapeEmpty}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return empty, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return invalid(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if len(top) == 0 {
		return empty, nil
	}

	if _, ok := top["version"]; ok {
		return decodeVersioned(trimmed)
	}
	if isSnapshot(top) {
		return decodeOffset(top)
	}
	return decodeLegacy(top, now)
}

func invalid(err error) (Decoded, error) {
	return Decoded{Cards: map[string]domain.Card{}, Shape: ShapeInvalid}, err
}

// isSnapshot reports whether the payload is offset encoded: a numeric
// base_time_ms next to a cards object. A zero base time is still a snapshot.
func isSnapshot(top map[string]json.RawMessage) bool {
	rawBase, hasBase := top["base_time_ms"]
	rawCards, hasCards := top["cards"]
	if !hasBase || !hasCards {
		return false
	}
	var base float64
	if err := json.Unmarshal(rawBase, &base); err != nil {
		return false
	}
	return firstByte(rawCards) == '{'
}

func decodeVersioned(data []byte) (Decoded, error) {
	var snap struct {
		Version    int                  `json:"version"`
		BaseTimeMs int64                `json:"base_time_ms"`
		Cards      map[string][]float64 `json:"cards"`
		Content    map[string]Content   `json:"content"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return invalid(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if snap.Version != Version {
		return invalid(fmt.Errorf("%w: unsupported snapshot version %d", ErrMalformed, snap.Version))
	}

	out := Decoded{Cards: make(map[string]domain.Card, len(snap.Cards)), Shape: ShapeVersioned}
	for key, triple := range snap.Cards {
		card, ok := fromTriple(key, triple, func(offset int64) time.Time {
			return DueFromOffset(snap.BaseTimeMs, offset)
		})
		if !ok {
			out.Skipped = append(out.Skipped, key)
			continue
		}
		if c, found := snap.Content[key]; found {
			card.Question, card.Answer = c.Question, c.Answer
		}
		out.Cards[card.Key] = card
	}
	return out, nil
}

func decodeOffset(top map[string]json.RawMessage) (Decoded, error) {
	var base float64
	if err := json.Unmarshal(top["base_time_ms"], &base); err != nil {
		return invalid(fmt.Errorf("%w: base_time_ms: %v", ErrMalformed, err))
	}
	baseMs := int64(math.Round(base))

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(top["cards"], &entries); err != nil {
		return invalid(fmt.Errorf("%w: cards: %v", ErrMalformed, err))
	}

	out := Decoded{Cards: make(map[string]domain.Card, len(entries)), Shape: ShapeOffset}
	dueAt := func(offset int64) time.Time { return DueFromOffset(baseMs, offset) }

	for key, raw := range entries {
		var card domain.Card
		var ok bool
		switch firstByte(raw) {
		case '[':
			var triple []float64
			if json.Unmarshal(raw, &triple) == nil {
				card, ok = fromTriple(key, triple, dueAt)
			}
		case '{':
			var deckCard struct {
				Question string    `json:"question"`
				Answer   string    `json:"answer"`
				Data     []float64 `json:"data"`
			}
			if json.Unmarshal(raw, &deckCard) == nil {
				card, ok = fromTriple(key, deckCard.Data, dueAt)
				card.Question, card.Answer = deckCard.Question, deckCard.Answer
				out.Shape = ShapeDeckOffset
			}
		}
		if !ok {
			out.Skipped = append(out.Skipped, key)
			continue
		}
		out.Cards[card.Key] = card
	}
	return out, nil
}

// legacyObject is the oldest per-card layout. Fields other than the three
// scheduling values (char, word, definitions, ...) are dropped.
type legacyObject struct {
	Interval *float64 `json:"interval"`
	Ease     *float64 `json:"ease"`
	Due      *float64 `json:"due"`
}

func decodeLegacy(top map[string]json.RawMessage, now time.Time) (Decoded, error) {
	out := Decoded{Cards: make(map[string]domain.Card, len(top)), Shape: ShapeAbsolute}
	absolute := func(due int64) time.Time { return time.UnixMilli(due) }

	for key, raw := range top {
		var card domain.Card
		var ok bool
		switch firstByte(raw) {
		case '[':
			var triple []float64
			if json.Unmarshal(raw, &triple) == nil {
				card, ok = fromTriple(key, triple, absolute)
			}
		case '{':
			var obj legacyObject
			if json.Unmarshal(raw, &obj) == nil {
				card, ok = fromObject(key, obj, now)
				out.Shape = ShapeObject
			}
		}
		if !ok {
			out.Skipped = append(out.Skipped, key)
			continue
		}
		out.Cards[card.Key] = card
	}

	if len(out.Cards) == 0 && len(out.Skipped) > 0 {
		return invalid(fmt.Errorf("%w: no readable cards in %d entries", ErrMalformed, len(out.Skipped)))
	}
	return out, nil
}

func fromTriple(key string, triple []float64, due func(int64) time.Time) (domain.Card, bool) {
	key = knol.Normalize(key)
	if key == "" || len(triple) < 3 {
		return domain.Card{}, false
	}
	return domain.Card{
		Key:      key,
		Interval: clampInterval(triple[0]),
		Ease:     clampEase(triple[1]),
		Due:      due(int64(math.Round(triple[2]))),
	}, true
}

func fromObject(key string, obj legacyObject, now time.Time) (domain.Card, bool) {
	key = knol.Normalize(key)
	if key == "" {
		return domain.Card{}, false
	}
	card := domain.NewCard(key, now)
	if obj.Interval != nil {
		card.Interval = clampInterval(*obj.Interval)
	}
	if obj.Ease != nil && *obj.Ease != 0 {
		card.Ease = clampEase(*obj.Ease)
	}
	if obj.Due != nil && *obj.Due != 0 {
		card.Due = time.UnixMilli(int64(math.Round(*obj.Due)))
	}
	return card, true
}

func clampInterval(v float64) int {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v))
}

func clampEase(v float64) int {
	ease := int(math.Round(v))
	if ease < domain.MinEase {
		return domain.MinEase
	}
	return ease
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
