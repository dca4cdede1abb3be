package seed

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Supported reports whether LoadFile understands the file's extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".json", ".md", ".csv", ".xlsx":
		return true
	}
	return false
}

// LoadFile parses a seed file, picking the format from its extension.
func LoadFile(path string) ([]domain.SeedEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return ParseText(f)
	case ".md":
		return ParseMarkdown(f)
	case ".csv":
		return ParseCSV(f)
	case ".xlsx":
		return ParseXLSX(f)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseVocabulary(data)
	}
	return nil, fmt.Errorf("unsupported seed file %s", path)
}

// Load reads a file, or every supported file below a directory in lexical
// order. Parse errors are collected and returned with whatever was read.
// Hidden directories such as .git are skipped.
func Load(path string) ([]domain.SeedEntry, []error, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat seed source %s: %w", path, err)
	}
	if !info.IsDir() {
		entries, err := LoadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return entries, nil, nil
	}

	var entries []domain.SeedEntry
	var parseErrors []error
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(p) {
			return nil
		}
		fileEntries, parseErr := LoadFile(p)
		if parseErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", p, parseErr))
			return nil
		}
		entries = append(entries, fileEntries...)
		return nil
	})
	if walkErr != nil {
		return nil, parseErrors, fmt.Errorf("failed to walk %s: %w", path, walkErr)
	}
	return compact(entries), parseErrors, nil
}
