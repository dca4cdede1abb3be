package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/stretchr/testify/require"
)

type recordingSeeder struct {
	entries []domain.SeedEntry
	opts    session.SeedOptions
	calls   int
}

func (r *recordingSeeder) Seed(_ context.Context, entries []domain.SeedEntry, opts session.SeedOptions) (session.SeedResult, error) {
	r.calls++
	r.entries = entries
	r.opts = opts
	return session.SeedResult{Added: len(entries)}, nil
}

func keys(entries []domain.SeedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	words := filepath.Join(dir, "words.txt")
	require.NoError(t, os.WriteFile(words, []byte("alpha\nbeta\n"), 0o644))
	vocab := filepath.Join(dir, "vocab")
	require.NoError(t, os.MkdirAll(vocab, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vocab, "list.json"), []byte(`[["gamma","伽马","b1"]]`), 0o644))

	t.Run("collects every source", func(t *testing.T) {
		s := &recordingSeeder{}
		report, err := Run(context.Background(), s, []string{words, vocab}, Options{Prune: true})
		require.NoError(t, err)
		require.Equal(t, 2, report.Sources)
		require.Equal(t, 3, report.Entries)
		require.Equal(t, 3, report.Result.Added)
		require.NoError(t, report.Err())
		require.Equal(t, []string{"alpha", "beta", "gamma"}, keys(s.entries))
		require.Equal(t, s.entries, report.Collected)
		require.True(t, s.opts.Prune)
	})

	t.Run("failed source disables prune", func(t *testing.T) {
		s := &recordingSeeder{}
		report, err := Run(context.Background(), s, []string{words, filepath.Join(dir, "missing")}, Options{Prune: true})
		require.NoError(t, err)
		require.Equal(t, 1, report.Sources)
		require.Len(t, report.Errors, 1)
		require.Error(t, report.Err())
		require.False(t, s.opts.Prune)
		require.Equal(t, []string{"alpha", "beta"}, keys(s.entries))
	})

	t.Run("no sources", func(t *testing.T) {
		s := &recordingSeeder{}
		report, err := Run(context.Background(), s, nil, Options{})
		require.NoError(t, err)
		require.Zero(t, s.calls)
		require.Zero(t, report.Sources)
	})

	t.Run("unparseable git url", func(t *testing.T) {
		s := &recordingSeeder{}
		report, err := Run(context.Background(), s, []string{"ssh://"}, Options{ReposDir: filepath.Join(dir, "repos")})
		require.NoError(t, err)
		require.Len(t, report.Errors, 1)
		require.Empty(t, s.entries)
	})
}
