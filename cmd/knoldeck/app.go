package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/knoldeck/internal/blobstore"
	"github.com/conorfennell/knoldeck/internal/config"
	"github.com/conorfennell/knoldeck/internal/deferred"
	"github.com/conorfennell/knoldeck/internal/gateway"
	"github.com/conorfennell/knoldeck/internal/registry"
	"github.com/conorfennell/knoldeck/internal/review"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/conorfennell/knoldeck/internal/storage"
	ksync "github.com/conorfennell/knoldeck/internal/sync"
)

const shutdownTimeout = 30 * time.Second

// app holds the wired components shared by every subcommand.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	db    *storage.DB
	sched *deferred.Scheduler
	gw    *gateway.Gateway
	reg   *registry.Registry
	sess  *session.Session
}

func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", cfg.Storage.Path)

	var remote blobstore.Store
	if cfg.RemoteConfigured() {
		client, err := blobstore.NewClient(cfg.Remote.BaseURL, cfg.Remote.GistID, cfg.Remote.Token, cfg.Remote.Timeout)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure remote: %w", err)
		}
		remote = client
	} else {
		logger.Info("remote not configured, keeping decks local")
	}

	policy, err := gateway.ParsePolicy(cfg.Sync.Policy)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sched := deferred.New()
	gw, err := gateway.New(db, remote, gateway.Options{
		Policy:   policy,
		Debounce: cfg.Sync.Debounce,
		MaxDelay: cfg.Sync.MaxDelay,
		Files:    cfg.Remote.Files,
		Deferrer: sched,
		Logger:   logger,
	})
	if err != nil {
		sched.Stop()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	a := &app{
		cfg:   cfg,
		log:   logger,
		db:    db,
		sched: sched,
		gw:    gw,
		reg:   registry.New(gw, registry.Options{Logger: logger}),
		sess:  session.New(gw, session.Options{History: db, Logger: logger}),
	}
	if err := a.reg.Load(ctx); err != nil {
		a.close()
		return nil, err
	}
	deck, err := a.reg.EnsureDefault(ctx, cfg.Deck.Default)
	if err != nil {
		a.close()
		return nil, err
	}
	if _, err := a.sess.Open(ctx, deck.ID); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// startProbe begins polling the remote while a long-running command runs.
func (a *app) startProbe() {
	if !a.gw.Remote() || a.cfg.Sync.Probe <= 0 {
		return
	}
	if err := a.gw.StartProbe(a.cfg.Sync.Probe); err != nil {
		a.log.Warn("connectivity probe not started", "error", err)
	}
}

// seed syncs the configured sources into the open deck. In vocabulary mode
// the collected entries also drive tiered selection.
func (a *app) seed(ctx context.Context) (ksync.Report, error) {
	report, err := ksync.Run(ctx, a.sess, a.cfg.Seed.Sources, ksync.Options{
		ReposDir:     a.cfg.Seed.ReposDir,
		Prune:        a.cfg.Seed.Prune,
		FirstRunOnly: a.cfg.Seed.FirstRunOnly,
		Logger:       a.log,
	})
	if err != nil {
		return report, err
	}
	if a.cfg.Deck.Vocabulary && len(report.Collected) > 0 {
		a.sess.UseTiers(report.Collected, review.DefaultTiers)
	}
	return report, nil
}

// close flushes pending remote writes before releasing resources. It runs
// on every exit path.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.gw.Close(ctx); err != nil {
		a.log.Error("pending changes were not written to the remote; they are kept locally", "error", err)
	}
	a.sched.Stop()
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close database", "error", err)
	}
}
