package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knoldeck/internal/gateway"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/conorfennell/knoldeck/internal/storage"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixedSync struct {
	status gateway.Status
}

func (f fixedSync) Status() (gateway.Status, error) { return f.status, nil }

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := storage.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gw, err := gateway.New(db, nil, gateway.Options{Logger: logger})
	require.NoError(t, err)
	sess := session.New(gw, session.Options{
		Now:    func() time.Time { return testNow },
		Rand:   rand.New(rand.NewPCG(7, 7)),
		Logger: logger,
	})
	_, err = sess.Open(context.Background(), "deck")
	require.NoError(t, err)
	return sess
}

func press(t *testing.T, m Model, k string) (Model, tea.Cmd) {
	t.Helper()
	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	if k == " " {
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestEmptyDeck(t *testing.T) {
	m := New(Options{Session: newTestSession(t), Now: func() time.Time { return testNow }})
	require.Contains(t, m.View(), "Deck is empty")
	require.Contains(t, m.View(), "local")

	m, cmd := press(t, m, " ")
	require.Nil(t, cmd)
	require.False(t, m.revealed)
}

func TestReviewCard(t *testing.T) {
	sess := newTestSession(t)
	_, _, err := sess.Add(context.Background(), "猫")
	require.NoError(t, err)

	m := New(Options{Session: sess, Sync: fixedSync{status: gateway.StatusSynced}, Now: func() time.Time { return testNow }})
	require.True(t, m.hasCard)
	require.Contains(t, m.View(), "猫")
	require.Contains(t, m.View(), "Due: 1 / New: 1 / Total: 1")
	require.Contains(t, m.View(), "synced")

	// Grading before the answer is shown does nothing.
	m, cmd := press(t, m, "2")
	require.Nil(t, cmd)

	m, _ = press(t, m, " ")
	require.True(t, m.revealed)
	require.Contains(t, m.View(), "(10m)")

	m, cmd = press(t, m, "2")
	require.NotNil(t, cmd)
	require.True(t, m.busy)

	next, _ := m.Update(cmd())
	m = next.(Model)
	require.False(t, m.busy)
	require.NoError(t, m.err)
	require.Equal(t, "猫: next in 10m", m.message)
	require.False(t, m.revealed)

	card, ok := sess.Lookup("猫")
	require.True(t, ok)
	require.Equal(t, 10, card.Interval)
}

func TestConflictBanner(t *testing.T) {
	m := New(Options{Session: newTestSession(t), Sync: fixedSync{status: gateway.StatusConflict}})
	require.Contains(t, m.View(), "Press r to reload")

	m, cmd := press(t, m, "r")
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	require.NoError(t, m.err)
	require.Equal(t, "deck reloaded", m.message)
}

func TestQuit(t *testing.T) {
	m := New(Options{Session: newTestSession(t)})
	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}
