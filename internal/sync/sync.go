// Package sync fetches seed sources and reconciles them into the open deck.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/seed"
	"github.com/conorfennell/knoldeck/internal/session"
)

// Seeder applies seed entries to a deck. *session.Session implements it.
type Seeder interface {
	Seed(ctx context.Context, entries []domain.SeedEntry, opts session.SeedOptions) (session.SeedResult, error)
}

// Options configures Run.
type Options struct {
	ReposDir     string
	Prune        bool
	FirstRunOnly bool
	Logger       *slog.Logger
}

// Report summarises one Run.
type Report struct {
	Sources int
	Entries int
	Result  session.SeedResult
	Errors  []error
	// Collected holds the entries in source order, for tiered selection.
	Collected []domain.SeedEntry
}

// Run collects entries from every source and seeds them in one batch. Local
// sources are files or directories; git URLs are cloned or pulled under
// ReposDir first. Pruning is skipped when any source failed, so cards are
// never removed because a source was unreachable.
func Run(ctx context.Context, s Seeder, sources []string, opts Options) (Report, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	reposDir := opts.ReposDir
	if reposDir == "" {
		reposDir = "repos"
	}

	var report Report
	if len(sources) == 0 {
		log.Info("no seed sources configured")
		return report, nil
	}

	var entries []domain.SeedEntry
	for _, source := range sources {
		log.Info("syncing seed source", "source", source)
		found, errs, err := collect(ctx, source, reposDir, log)
		report.Errors = append(report.Errors, errs...)
		if err != nil {
			log.Error("failed to sync seed source", "source", source, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Sources++
		entries = append(entries, found...)
	}
	report.Entries = len(entries)
	report.Collected = entries

	prune := opts.Prune
	if prune && len(report.Errors) > 0 {
		log.Warn("seed sources reported errors, skipping prune", "errors", len(report.Errors))
		prune = false
	}

	res, err := s.Seed(ctx, entries, session.SeedOptions{Prune: prune, FirstRunOnly: opts.FirstRunOnly})
	report.Result = res
	if err != nil {
		return report, fmt.Errorf("failed to seed deck: %w", err)
	}

	log.Info("seed sync complete",
		"sources", report.Sources,
		"entries", report.Entries,
		"added", res.Added,
		"updated", res.Updated,
		"pruned", res.Pruned,
		"errors", len(report.Errors),
	)
	return report, nil
}

func collect(ctx context.Context, source, reposDir string, log *slog.Logger) ([]domain.SeedEntry, []error, error) {
	path := source
	if seed.IsGitURL(source) {
		localPath, err := seed.LocalPath(reposDir, source)
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(reposDir, os.ModePerm); err != nil {
			return nil, nil, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := seed.SyncRepo(ctx, source, localPath, log); err != nil {
			return nil, nil, err
		}
		path = localPath
	}

	entries, parseErrors, err := seed.Load(path)
	if err != nil {
		return nil, parseErrors, err
	}
	for _, perr := range parseErrors {
		log.Warn("skipped unreadable seed file", "source", source, "error", perr)
	}
	return entries, parseErrors, nil
}

// Err joins the errors of a report, or returns nil.
func (r Report) Err() error {
	return errors.Join(r.Errors...)
}
