package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/xuri/excelize/v2"
)

var headerWords = map[string]bool{"word": true, "key": true, "english": true, "term": true}

// ParseCSV reads rows of key, translation, tier. A header row is detected
// by its first cell and skipped.
func ParseCSV(r io.Reader) ([]domain.SeedEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return fromRows(rows), nil
}

// ParseXLSX reads the first sheet of a workbook the way ParseCSV reads rows.
func ParseXLSX(r io.Reader) ([]domain.SeedEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows of sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows), nil
}

func fromRows(rows [][]string) []domain.SeedEntry {
	entries := make([]domain.SeedEntry, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if i == 0 && headerWords[strings.ToLower(strings.TrimSpace(row[0]))] {
			continue
		}
		entries = append(entries, entryFromFields(row))
	}
	return compact(entries)
}
