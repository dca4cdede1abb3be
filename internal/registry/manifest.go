package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Format is the stored layout of the manifest.
type Format int

const (
	// FormatDecks stores [{"id":..,"name":..}, ...].
	FormatDecks Format = iota
	// FormatNames stores ["name", ...]; each name doubles as the id.
	FormatNames
)

func decodeManifest(data []byte) ([]domain.Deck, Format, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, FormatDecks, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, FormatDecks, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(raw) == 0 {
		return nil, FormatDecks, nil
	}

	format := FormatDecks
	if first := bytes.TrimSpace(raw[0]); len(first) > 0 && first[0] == '"' {
		format = FormatNames
	}

	decks := make([]domain.Deck, 0, len(raw))
	for i, item := range raw {
		var d domain.Deck
		if format == FormatNames {
			var name string
			if err := json.Unmarshal(item, &name); err != nil {
				return nil, format, fmt.Errorf("failed to parse manifest entry %d: %w", i, err)
			}
			d = domain.Deck{ID: strings.TrimSpace(name), Name: strings.TrimSpace(name)}
		} else if err := json.Unmarshal(item, &d); err != nil {
			return nil, format, fmt.Errorf("failed to parse manifest entry %d: %w", i, err)
		}
		if d.ID == "" || d.Name == "" {
			continue
		}
		decks = append(decks, d)
	}
	return decks, format, nil
}

func encodeManifest(decks []domain.Deck, format Format) ([]byte, error) {
	if format == FormatNames {
		names := make([]string, len(decks))
		for i, d := range decks {
			names[i] = d.Name
		}
		return json.Marshal(names)
	}
	if decks == nil {
		decks = []domain.Deck{}
	}
	return json.Marshal(decks)
}
