// Package tui is a terminal review front-end over a Session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/gateway"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/conorfennell/knoldeck/internal/srs"
	"github.com/conorfennell/knoldeck/internal/stats"
)

// SyncStatus reports the sync indicator. *gateway.Gateway implements it.
type SyncStatus interface {
	Status() (gateway.Status, error)
}

// Options configures the review screen.
type Options struct {
	Context    context.Context
	Session    *session.Session
	Sync       SyncStatus
	ExcludeNew bool
	// PollTick is how often the sync indicator is refreshed.
	PollTick time.Duration
	Now      func() time.Time
}

type tickMsg time.Time

type gradedMsg struct {
	card domain.Card
	err  error
}

type reloadedMsg struct {
	err error
}

// Model is the review screen state.
type Model struct {
	ctx        context.Context
	sess       *session.Session
	sync       SyncStatus
	excludeNew bool
	pollTick   time.Duration
	now        func() time.Time

	keys keyMap
	help help.Model

	card     domain.Card
	hasCard  bool
	revealed bool
	labels   map[srs.Rating]string
	busy     bool

	status     stats.Status
	syncStatus gateway.Status
	syncErr    error
	message    string
	err        error
}

// New creates the review screen. The first card is selected immediately.
func New(opts Options) Model {
	m := Model{
		ctx:        opts.Context,
		sess:       opts.Session,
		sync:       opts.Sync,
		excludeNew: opts.ExcludeNew,
		pollTick:   opts.PollTick,
		now:        opts.Now,
		keys:       defaultKeyMap(),
		help:       help.New(),
	}
	if m.ctx == nil {
		m.ctx = context.Background()
	}
	if m.pollTick == 0 {
		m.pollTick = time.Second
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.refresh()
	m.advance()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd(m.pollTick)
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd(m.pollTick)

	case gradedMsg:
		m.busy = false
		m.err = msg.err
		m.message = fmt.Sprintf("%s: next in %s", msg.card.Key, srs.FormatInterval(msg.card.Interval))
		m.refresh()
		m.advance()
		return m, nil

	case reloadedMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.message = "deck reloaded"
		}
		m.refresh()
		m.advance()
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Reload):
		m.busy = true
		return m, m.reloadCmd()
	case key.Matches(msg, m.keys.Reveal):
		if m.hasCard {
			m.revealed = true
		}
		return m, nil
	case key.Matches(msg, m.keys.Again):
		return m.grade(srs.Again)
	case key.Matches(msg, m.keys.Good):
		return m.grade(srs.Good)
	case key.Matches(msg, m.keys.Easy):
		return m.grade(srs.Easy)
	}
	return m, nil
}

// grade is ignored until the answer has been revealed.
func (m Model) grade(r srs.Rating) (tea.Model, tea.Cmd) {
	if !m.hasCard || !m.revealed {
		return m, nil
	}
	m.busy = true
	sess, ctx, k := m.sess, m.ctx, m.card.Key
	return m, func() tea.Msg {
		card, err := sess.Grade(ctx, k, r)
		return gradedMsg{card: card, err: err}
	}
}

func (m Model) reloadCmd() tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		_, err := sess.Reload(ctx)
		return reloadedMsg{err: err}
	}
}

// advance selects the next card and resets the reveal state.
func (m *Model) advance() {
	m.revealed = false
	m.card, m.hasCard = m.sess.Next()
	m.labels = nil
	if m.hasCard {
		m.labels, _ = m.sess.Preview(m.card.Key)
	}
}

// refresh updates the status line and the sync indicator.
func (m *Model) refresh() {
	m.status = stats.Count(m.sess.Cards(), m.now(), m.excludeNew)
	m.syncStatus = gateway.StatusLocal
	m.syncErr = nil
	if m.sync != nil {
		m.syncStatus, m.syncErr = m.sync.Status()
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("knoldeck"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render(m.sess.Namespace()))
	b.WriteString("  ")
	b.WriteString(renderSync(m.syncStatus))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(m.status.String()))
	b.WriteString("\n\n")

	if m.syncStatus == gateway.StatusConflict {
		b.WriteString(errorStyle.Render("The remote deck changed elsewhere. Press r to reload before reviewing."))
		b.WriteString("\n\n")
	}

	if !m.hasCard {
		b.WriteString("Deck is empty. Add cards or run seed.\n")
	} else {
		b.WriteString(cardStyle.Render(m.front()))
		b.WriteString("\n")
		if m.revealed {
			if answer := m.card.Answer; answer != "" {
				b.WriteString(answer)
				b.WriteString("\n")
			}
			b.WriteString(m.buttons())
			b.WriteString("\n")
		}
	}

	if m.message != "" {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(m.message))
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(describeError(m.err)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) front() string {
	if m.card.Question != "" {
		return m.card.Question
	}
	return m.card.Key
}

func (m Model) buttons() string {
	parts := make([]string, 0, len(srs.Ratings))
	for i, r := range srs.Ratings {
		parts = append(parts, fmt.Sprintf("%s %s (%s)",
			keyStyle.Render(fmt.Sprint(i+1)), r.String(), m.labels[r]))
	}
	return strings.Join(parts, "   ")
}

func describeError(err error) string {
	if errors.Is(err, gateway.ErrConflict) {
		return "write rejected: the remote deck changed. Press r to reload."
	}
	return err.Error()
}
