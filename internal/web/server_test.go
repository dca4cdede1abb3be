package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knoldeck/internal/gateway"
	"github.com/conorfennell/knoldeck/internal/registry"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/conorfennell/knoldeck/internal/stats"
	ksync "github.com/conorfennell/knoldeck/internal/sync"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv  *Server
	sess *session.Session
	reg  *registry.Registry
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gw, err := gateway.New(db, nil, gateway.Options{Logger: logger})
	require.NoError(t, err)

	n := 0
	reg := registry.New(gw, registry.Options{
		Logger: logger,
		NewID: func() string {
			n++
			return fmt.Sprintf("deck-%d", n)
		},
	})
	require.NoError(t, reg.Load(ctx))
	deck, err := reg.EnsureDefault(ctx, "Default")
	require.NoError(t, err)

	clock := func() time.Time { return testNow }
	sess := session.New(gw, session.Options{
		History: db,
		Now:     clock,
		Rand:    rand.New(rand.NewPCG(1, 2)),
		Logger:  logger,
	})
	_, err = sess.Open(ctx, deck.ID)
	require.NoError(t, err)

	opts.Sync = gw
	opts.Reviews = db
	opts.Now = clock
	opts.Logger = logger
	return &fixture{srv: NewServer(sess, reg, opts), sess: sess, reg: reg}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func cardPath(key, suffix string) string {
	return "/api/cards/" + url.PathEscape(key) + suffix
}

func TestReviewFlow(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/api/review/next", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cards", `{"keys": ["你", "好"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, addResponse{Added: 2}, decode[addResponse](t, rec))

	rec = f.do(t, http.MethodPost, "/api/cards", `{"key": "你"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, addResponse{Ignored: 1}, decode[addResponse](t, rec))

	rec = f.do(t, http.MethodPost, "/api/cards", `{"text": "你好, 世界!"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, addResponse{Added: 2, Ignored: 2}, decode[addResponse](t, rec))

	rec = f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[statusResponse](t, rec)
	require.Equal(t, stats.Status{Due: 4, New: 4, Total: 4}, status.Status)
	require.Equal(t, "local", status.Sync)
	require.Equal(t, "deck-1", status.Namespace)

	rec = f.do(t, http.MethodGet, "/api/review/next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[nextResponse](t, rec)
	require.Equal(t, map[string]string{"again": "1m", "good": "10m", "easy": "3d"}, next.Buttons)
	require.Equal(t, "New", next.Card.Label)

	rec = f.do(t, http.MethodPost, cardPath("你", "/grade"), `{"rating": "good"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	graded := decode[cardResponse](t, rec)
	require.Equal(t, 10, graded.Interval)
	require.Equal(t, 250, graded.Ease)
	require.True(t, graded.Due.Equal(testNow.Add(10*time.Minute)))

	rec = f.do(t, http.MethodGet, cardPath("你", ""), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10m", decode[cardResponse](t, rec).Label)

	rec = f.do(t, http.MethodGet, cardPath("你", "/preview"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, decode[map[string]string](t, rec), "good")

	rec = f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[stats.Report](t, rec)
	require.Equal(t, 1, report.ReviewedToday)
	require.Equal(t, stats.Maturity{New: 3, Learning: 1}, report.Maturity)
	require.Equal(t, 3, report.Status.Due)
}

func TestGradeErrors(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/api/cards", `{"key": "cat"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	testCases := []struct {
		name string
		path string
		body string
		code int
	}{
		{name: "unknown rating", path: cardPath("cat", "/grade"), body: `{"rating": "meh"}`, code: http.StatusBadRequest},
		{name: "missing rating", path: cardPath("cat", "/grade"), body: `{}`, code: http.StatusBadRequest},
		{name: "unknown field", path: cardPath("cat", "/grade"), body: `{"rating": "good", "x": 1}`, code: http.StatusBadRequest},
		{name: "not json", path: cardPath("cat", "/grade"), body: `good`, code: http.StatusBadRequest},
		{name: "unknown card", path: cardPath("dog", "/grade"), body: `{"rating": "again"}`, code: http.StatusNotFound},
		{name: "numeric rating", path: cardPath("cat", "/grade"), body: `{"rating": "1"}`, code: http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tc.path, tc.body)
			require.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}

	rec = f.do(t, http.MethodPost, "/api/cards", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/cards/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCardNeedsConfirmation(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/api/cards", `{"key": "Cat"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cards/cat", "")
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)
	_, ok := f.sess.Lookup("Cat")
	require.True(t, ok)

	rec = f.do(t, http.MethodDelete, "/api/cards/cat?confirm=true", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, ok = f.sess.Lookup("Cat")
	require.False(t, ok)

	rec = f.do(t, http.MethodDelete, "/api/cards/cat?confirm=true", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecks(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/api/decks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decks := decode[decksResponse](t, rec)
	require.Len(t, decks.Decks, 1)
	require.Equal(t, "deck-1", decks.Active)

	rec = f.do(t, http.MethodPost, "/api/decks", `{"name": "Vocab"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/decks", `{"name": "vocab"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/decks", `{"name": ""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/decks/deck-2/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "deck-2", decode[decksResponse](t, rec).Active)
	require.Equal(t, "deck-2", f.sess.Namespace())

	rec = f.do(t, http.MethodPost, "/api/decks/missing/activate", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/decks/deck-2", `{"name": "Oxford"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	deck, ok := f.reg.Find("oxford")
	require.True(t, ok)
	require.Equal(t, "deck-2", deck.ID)

	rec = f.do(t, http.MethodDelete, "/api/decks/deck-2", "")
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/decks/deck-2?confirm=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "deck-1", decode[decksResponse](t, rec).Active)
	require.Equal(t, "deck-1", f.sess.Namespace())

	rec = f.do(t, http.MethodDelete, "/api/decks/deck-1?confirm=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[decksResponse](t, rec).Decks)
	require.Empty(t, f.sess.Namespace())

	rec = f.do(t, http.MethodGet, "/api/review/next", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/cards", `{"key": "cat"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSeedEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/api/seed", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	f = newFixture(t, Options{
		Seed: func(ctx context.Context) (ksync.Report, error) {
			return ksync.Report{
				Sources: 2,
				Entries: 5,
				Result:  session.SeedResult{Added: 3, Pruned: 1},
				Errors:  []error{fmt.Errorf("parsing x.json: bad")},
			}, nil
		},
	})
	rec = f.do(t, http.MethodPost, "/api/seed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[seedResponse](t, rec)
	require.Equal(t, 3, resp.Added)
	require.Equal(t, 1, resp.Pruned)
	require.Equal(t, []string{"parsing x.json: bad"}, resp.Errors)
}

func TestReloadClearsState(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/api/cards", `{"key": "cat"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, decode[statusResponse](t, rec).Status.Total)
}
