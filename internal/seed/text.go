package seed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/knol"
)

// ParseText reads one key per line. Blank lines and lines starting with '#'
// are skipped. Tab separated lines may carry a translation and a tier.
func ParseText(r io.Reader) ([]domain.SeedEntry, error) {
	scanner := bufio.NewScanner(r)
	var entries []domain.SeedEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		entries = append(entries, entryFromFields(fields))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return compact(entries), nil
}

type vocabularyObject struct {
	Key         string `json:"key"`
	Word        string `json:"word"`
	English     string `json:"english"`
	Translation string `json:"translation"`
	Chinese     string `json:"chinese"`
	Tier        string `json:"tier"`
	CEFR        string `json:"cefr"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
}

// ParseVocabulary reads a JSON list. Items may be bare keys, arrays of
// [key, translation, tier] or objects with named fields.
func ParseVocabulary(data []byte) ([]domain.SeedEntry, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}

	entries := make([]domain.SeedEntry, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		switch item[0] {
		case '"':
			var key string
			if err := json.Unmarshal(item, &key); err != nil {
				return nil, fmt.Errorf("vocabulary item %d: %w", i, err)
			}
			entries = append(entries, domain.SeedEntry{Key: key})
		case '[':
			var fields []string
			if err := json.Unmarshal(item, &fields); err != nil {
				return nil, fmt.Errorf("vocabulary item %d: %w", i, err)
			}
			entries = append(entries, entryFromFields(fields))
		case '{':
			var obj vocabularyObject
			if err := json.Unmarshal(item, &obj); err != nil {
				return nil, fmt.Errorf("vocabulary item %d: %w", i, err)
			}
			entries = append(entries, domain.SeedEntry{
				Key:         firstNonEmpty(obj.Key, obj.Word, obj.English),
				Translation: firstNonEmpty(obj.Translation, obj.Chinese),
				Tier:        firstNonEmpty(obj.Tier, obj.CEFR),
				Question:    obj.Question,
				Answer:      obj.Answer,
			})
		default:
			return nil, fmt.Errorf("vocabulary item %d: unsupported value %s", i, item)
		}
	}
	return compact(entries), nil
}

// HanCharacters returns the distinct Han characters of text in the order
// they first appear. Everything else is ignored.
func HanCharacters(text string) []string {
	seen := make(map[rune]bool)
	var out []string
	for _, r := range text {
		if !unicode.Is(unicode.Han, r) || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, string(r))
	}
	return out
}

func entryFromFields(fields []string) domain.SeedEntry {
	var e domain.SeedEntry
	if len(fields) > 0 {
		e.Key = fields[0]
	}
	if len(fields) > 1 {
		e.Translation = strings.TrimSpace(fields[1])
	}
	if len(fields) > 2 {
		e.Tier = strings.ToUpper(strings.TrimSpace(fields[2]))
	}
	return e
}

// compact normalises keys and drops blanks and repeats, keeping the first.
func compact(entries []domain.SeedEntry) []domain.SeedEntry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		e.Key = knol.Normalize(e.Key)
		if e.Key == "" || seen[e.Key] {
			continue
		}
		seen[e.Key] = true
		e.Tier = strings.ToUpper(strings.TrimSpace(e.Tier))
		out = append(out, e)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
