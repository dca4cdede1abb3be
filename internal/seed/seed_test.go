package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func keysOf(t *testing.T, entries []domain.SeedEntry) []string {
	t.Helper()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func TestParseText(t *testing.T) {
	input := "# greetings\nhello\n\n  world  \nhello\r\nbonjour\tgood day\ta1\n"
	entries, err := ParseText(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world", "bonjour"}, keysOf(t, entries))
	require.Equal(t, "good day", entries[2].Translation)
	require.Equal(t, "A1", entries[2].Tier)
}

func TestParseVocabulary(t *testing.T) {
	data := `[
		["hello", "你好", "a1"],
		"world",
		{"word": "cat", "chinese": "猫", "cefr": "b1"},
		["", "nothing"],
		"world"
	]`
	entries, err := ParseVocabulary([]byte(data))
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world", "cat"}, keysOf(t, entries))
	require.Equal(t, "你好", entries[0].Translation)
	require.Equal(t, "A1", entries[0].Tier)
	require.Equal(t, "猫", entries[2].Translation)
	require.Equal(t, "B1", entries[2].Tier)

	_, err = ParseVocabulary([]byte(`{"not": "a list"}`))
	require.Error(t, err)
	_, err = ParseVocabulary([]byte(`[1]`))
	require.Error(t, err)
}

func TestParseCSV(t *testing.T) {
	input := "word,translation,tier\nhello,你好,a1\nbye,再见,A2,extra\nhello,dup,B1\n,blank\n"
	entries, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "bye"}, keysOf(t, entries))
	require.Equal(t, "A1", entries[0].Tier)
	require.Equal(t, "再见", entries[1].Translation)

	entries, err = ParseCSV(strings.NewReader("cat\ndog\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"cat", "dog"}, keysOf(t, entries))
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"Word", "Translation", "Tier"},
		{"apple", "苹果", "a1"},
		{"river", "河", "b2"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := ParseXLSX(buf)
	require.NoError(t, err)
	require.Equal(t, []string{"apple", "river"}, keysOf(t, entries))
	require.Equal(t, "河", entries[1].Translation)
	require.Equal(t, "B2", entries[1].Tier)

	_, err = ParseXLSX(strings.NewReader("not a workbook"))
	require.Error(t, err)
}

func TestHanCharacters(t *testing.T) {
	require.Equal(t, []string{"你", "好", "世", "界"}, HanCharacters("你好, 世界! 你好 abc"))
	require.Empty(t, HanCharacters("no han here 123"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("a.txt", "one\n# comment\ntwo\n")
	write("b/c.md", "Q: q\nA: a\n")
	write("bad.json", "{")
	write("notes.bin", "ignored")
	write(".git/x.txt", "hidden")

	entries, parseErrors, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, parseErrors, 1)
	require.Equal(t, []string{"one", "two", QuestionKey("q")}, keysOf(t, entries))
	require.Equal(t, "a", entries[2].Answer)

	entries, parseErrors, err = Load(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Empty(t, parseErrors)
	require.Len(t, entries, 2)

	_, _, err = Load(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		url      string
		expected string
		wantErr  bool
	}{
		{url: "https://github.com/owner/words.git", expected: filepath.Join("repos", "github.com", "owner", "words")},
		{url: "http://example.com/a/b", expected: filepath.Join("repos", "example.com", "a", "b")},
		{url: "git@github.com:owner/words.git", expected: filepath.Join("repos", "github.com", "owner", "words")},
		{url: "/just/a/path", wantErr: true},
		{url: "https:///nohost", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}

	require.True(t, IsGitURL("https://github.com/owner/words.git"))
	require.True(t, IsGitURL("git@github.com:owner/words.git"))
	require.False(t, IsGitURL("./vocab/hsk1.txt"))
}
