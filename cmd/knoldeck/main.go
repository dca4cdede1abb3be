package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/conorfennell/knoldeck/internal/config"
	"github.com/conorfennell/knoldeck/internal/logging"
	"github.com/conorfennell/knoldeck/internal/seed"
	"github.com/conorfennell/knoldeck/internal/stats"
	"github.com/conorfennell/knoldeck/internal/tui"
	"github.com/conorfennell/knoldeck/internal/web"
)

const usage = `usage: knoldeck <command> [flags] [args]

commands:
  serve              run the JSON API
  review             review the active deck in the terminal
  seed               sync seed sources into the active deck
  add KEY...         add cards (--han to add every Han character of the args)
  stats              print deck statistics as JSON
  decks              list decks
  decks create NAME  create a deck
  decks rename ID NAME
  decks use ID       make a deck active
  decks delete ID    delete a deck and its cards
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	command := argv[0]

	flags := config.Flags(command)
	flags.Bool("han", false, "add: treat arguments as text and add each Han character")
	flags.BoolP("yes", "y", false, "decks delete: skip the confirmation prompt")
	cfg, args, err := config.Load(flags, argv[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "knoldeck: %v\n", err)
		return 2
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "knoldeck: %v\n", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.close()

	switch command {
	case "serve":
		err = a.serve(ctx)
	case "review":
		err = a.review(ctx)
	case "seed":
		err = a.runSeed(ctx, os.Stdout)
	case "add":
		han, _ := flags.GetBool("han")
		err = a.add(ctx, os.Stdout, args, han)
	case "stats":
		err = a.printStats(ctx, os.Stdout)
	case "decks":
		yes, _ := flags.GetBool("yes")
		err = a.decks(ctx, os.Stdout, os.Stdin, args, yes)
	default:
		fmt.Fprintf(os.Stderr, "knoldeck: unknown command %q\n\n%s", command, usage)
		return 2
	}
	if err != nil {
		logger.Error(command+" failed", "error", err)
		return 1
	}
	return 0
}

func (a *app) serve(ctx context.Context) error {
	if _, err := a.seed(ctx); err != nil {
		a.log.Warn("initial seed failed", "error", err)
	}
	a.startProbe()

	handler := web.NewServer(a.sess, a.reg, web.Options{
		Sync:       a.gw,
		Reviews:    a.db,
		Seed:       a.seed,
		ExcludeNew: a.cfg.Deck.Vocabulary,
		Logger:     a.log,
	})
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", a.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) review(ctx context.Context) error {
	if _, err := a.seed(ctx); err != nil {
		a.log.Warn("initial seed failed", "error", err)
	}
	a.startProbe()

	m := tui.New(tui.Options{
		Context:    ctx,
		Session:    a.sess,
		Sync:       a.gw,
		ExcludeNew: a.cfg.Deck.Vocabulary,
	})
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *app) runSeed(ctx context.Context, w io.Writer) error {
	report, err := a.seed(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "sources: %d, entries: %d, added: %d, updated: %d, pruned: %d\n",
		report.Sources, report.Entries, report.Result.Added, report.Result.Updated, report.Result.Pruned)
	for _, e := range report.Errors {
		fmt.Fprintf(w, "- %s\n", e)
	}
	return nil
}

func (a *app) add(ctx context.Context, w io.Writer, args []string, han bool) error {
	keys := args
	if han {
		keys = seed.HanCharacters(strings.Join(args, " "))
	}
	if len(keys) == 0 {
		return fmt.Errorf("nothing to add")
	}
	added, ignored, err := a.sess.AddMany(ctx, keys)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "added %d, already present %d\n", added, ignored)
	return nil
}

func (a *app) printStats(ctx context.Context, w io.Writer) error {
	report, err := stats.Build(ctx, a.sess.Namespace(), a.sess.Cards(), time.Now(),
		a.cfg.Deck.Vocabulary, a.db)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func (a *app) decks(ctx context.Context, w io.Writer, in io.Reader, args []string, yes bool) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list":
		active, _ := a.reg.Active()
		for _, d := range a.reg.List() {
			marker := " "
			if d.ID == active.ID {
				marker = "*"
			}
			fmt.Fprintf(w, "%s %s\t%s\n", marker, d.ID, d.Name)
		}
		return nil
	case "create":
		if len(args) != 1 {
			return fmt.Errorf("usage: decks create NAME")
		}
		d, err := a.reg.Create(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "created %s\t%s\n", d.ID, d.Name)
		return nil
	case "rename":
		if len(args) != 2 {
			return fmt.Errorf("usage: decks rename ID NAME")
		}
		_, err := a.reg.Rename(ctx, args[0], args[1])
		return err
	case "use":
		if len(args) != 1 {
			return fmt.Errorf("usage: decks use ID")
		}
		d, ok := a.reg.Find(args[0])
		if !ok {
			return fmt.Errorf("deck %s not found", args[0])
		}
		return a.reg.SetActive(ctx, d.ID)
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: decks delete ID")
		}
		d, ok := a.reg.Find(args[0])
		if !ok {
			return fmt.Errorf("deck %s not found", args[0])
		}
		if !yes && !confirm(w, in, fmt.Sprintf("Delete deck %q and all its cards?", d.Name)) {
			fmt.Fprintln(w, "cancelled")
			return nil
		}
		return a.reg.Delete(ctx, d.ID)
	}
	return fmt.Errorf("unknown decks command %q", sub)
}

// confirm asks a yes/no question on in.
func confirm(w io.Writer, in io.Reader, question string) bool {
	fmt.Fprintf(w, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
