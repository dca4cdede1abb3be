package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/gateway"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	docs       map[string]string
	deleted    []string
	failSet    bool
	failDelete bool
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]string{}}
}

func (m *memStore) LoadDocument(_ context.Context, loc gateway.Location) ([]byte, bool, error) {
	v, ok := m.docs[loc.CacheKey]
	return []byte(v), ok, nil
}

func (m *memStore) SaveDocument(_ context.Context, loc gateway.Location, data []byte) error {
	if m.failSet {
		return errors.New("quota exceeded")
	}
	m.docs[loc.CacheKey] = string(data)
	return nil
}

func (m *memStore) DeleteNamespace(_ context.Context, namespace string) error {
	if m.failDelete {
		return errors.New("disk I/O error")
	}
	m.deleted = append(m.deleted, namespace)
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("deck-%d", n)
	}
}

func newTestRegistry(store Store) *Registry {
	return New(store, Options{
		NewID:  sequentialIDs(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestCreateAndActivate(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(store)
	ctx := context.Background()
	require.NoError(t, r.Load(ctx))

	_, ok := r.Active()
	require.False(t, ok)

	first, err := r.Create(ctx, "  Hanzi ")
	require.NoError(t, err)
	require.Equal(t, domain.Deck{ID: "deck-1", Name: "Hanzi"}, first)

	second, err := r.Create(ctx, "Oxford 3000")
	require.NoError(t, err)

	active, ok := r.Active()
	require.True(t, ok)
	require.Equal(t, first, active, "first deck becomes active")

	require.NoError(t, r.SetActive(ctx, second.ID))
	active, _ = r.Active()
	require.Equal(t, second, active)
	require.Equal(t, "deck-2", store.docs["registry:active"])
	require.JSONEq(t, `[{"id":"deck-1","name":"Hanzi"},{"id":"deck-2","name":"Oxford 3000"}]`, store.docs["registry"])

	require.ErrorIs(t, r.SetActive(ctx, "nope"), ErrNotFound)
}

func TestNameRules(t *testing.T) {
	r := newTestRegistry(newMemStore())
	ctx := context.Background()

	_, err := r.Create(ctx, "   ")
	require.ErrorIs(t, err, ErrEmptyName)

	deck, err := r.Create(ctx, "Words")
	require.NoError(t, err)

	_, err = r.Create(ctx, "words")
	require.ErrorIs(t, err, ErrDuplicateName)

	other, err := r.Create(ctx, "Phrases")
	require.NoError(t, err)
	_, err = r.Rename(ctx, other.ID, "WORDS")
	require.ErrorIs(t, err, ErrDuplicateName)

	renamed, err := r.Rename(ctx, deck.ID, "words")
	require.NoError(t, err, "renaming to a different case of its own name is allowed")
	require.Equal(t, "words", renamed.Name)

	_, err = r.Create(ctx, string(make([]byte, 65)))
	require.Error(t, err)

	_, err = r.Rename(ctx, "missing", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePromotesAndEmpties(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(store)
	ctx := context.Background()

	a, _ := r.Create(ctx, "A")
	b, _ := r.Create(ctx, "B")
	c, _ := r.Create(ctx, "C")
	require.NoError(t, r.SetActive(ctx, b.ID))

	require.NoError(t, r.Delete(ctx, a.ID))
	active, _ := r.Active()
	require.Equal(t, b, active, "deleting another deck keeps the active one")

	require.NoError(t, r.Delete(ctx, b.ID))
	active, _ = r.Active()
	require.Equal(t, c, active, "deleting the active deck promotes the first remaining")

	require.NoError(t, r.Delete(ctx, c.ID))
	_, ok := r.Active()
	require.False(t, ok, "deleting the last deck leaves no active deck")
	require.Empty(t, r.List())
	require.Equal(t, "", store.docs["registry:active"])
	require.Equal(t, "[]", store.docs["registry"])
	require.Equal(t, []string{a.ID, b.ID, c.ID}, store.deleted)

	require.ErrorIs(t, r.Delete(ctx, c.ID), ErrNotFound)
}

func TestDeleteRepairsActiveWhenCardsRemain(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(store)
	ctx := context.Background()

	a, _ := r.Create(ctx, "A")
	b, _ := r.Create(ctx, "B")
	store.failDelete = true

	err := r.Delete(ctx, a.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), a.ID)

	require.Equal(t, []domain.Deck{b}, r.List())
	active, ok := r.Active()
	require.True(t, ok)
	require.Equal(t, b, active)
	require.Equal(t, b.ID, store.docs["registry:active"])
}

func TestLoadRepairsActivePointer(t *testing.T) {
	store := newMemStore()
	store.docs["registry"] = `[{"id":"x","name":"X"},{"id":"y","name":"Y"}]`
	store.docs["registry:active"] = "gone"

	r := newTestRegistry(store)
	require.NoError(t, r.Load(context.Background()))

	active, ok := r.Active()
	require.True(t, ok)
	require.Equal(t, "x", active.ID)
	require.Equal(t, "x", store.docs["registry:active"])
}

func TestLoadManifestShapes(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   []domain.Deck
		format Format
	}{
		{
			name:   "id and name records",
			stored: `[{"id":"a1","name":"Alpha"},{"id":"b2","name":"Beta"}]`,
			want:   []domain.Deck{{ID: "a1", Name: "Alpha"}, {ID: "b2", Name: "Beta"}},
			format: FormatDecks,
		},
		{
			name:   "bare profile names",
			stored: `["Default", "Mum"]`,
			want:   []domain.Deck{{ID: "Default", Name: "Default"}, {ID: "Mum", Name: "Mum"}},
			format: FormatNames,
		},
		{
			name:   "duplicates and blanks dropped",
			stored: `[{"id":"a","name":"A"},{"id":"a","name":"B"},{"id":"c","name":"a"},{"id":"","name":"E"}]`,
			want:   []domain.Deck{{ID: "a", Name: "A"}},
			format: FormatDecks,
		},
		{name: "empty list", stored: `[]`, want: []domain.Deck{}, format: FormatDecks},
		{name: "malformed", stored: `{"decks":`, want: []domain.Deck{}, format: FormatDecks},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.docs["registry"] = tt.stored
			r := newTestRegistry(store)
			require.NoError(t, r.Load(context.Background()))

			got := r.List()
			if got == nil {
				got = []domain.Deck{}
			}
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.format, r.format)
		})
	}
}

func TestNamesFormatIsPreserved(t *testing.T) {
	store := newMemStore()
	store.docs["registry"] = `["Default"]`
	r := newTestRegistry(store)
	ctx := context.Background()
	require.NoError(t, r.Load(ctx))

	deck, err := r.Create(ctx, "Kids")
	require.NoError(t, err)
	require.Equal(t, domain.Deck{ID: "Kids", Name: "Kids"}, deck)
	require.JSONEq(t, `["Default","Kids"]`, store.docs["registry"])

	_, err = r.Rename(ctx, "Kids", "Children")
	require.Error(t, err)

	found, ok := r.Find("kids")
	require.True(t, ok)
	require.Equal(t, "Kids", found.ID)
}

func TestFailedSaveRollsBack(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(store)
	ctx := context.Background()
	_, err := r.Create(ctx, "A")
	require.NoError(t, err)

	store.failSet = true
	_, err = r.Create(ctx, "B")
	require.Error(t, err)
	require.Len(t, r.List(), 1)

	err = r.Delete(ctx, "deck-1")
	require.Error(t, err)
	require.Len(t, r.List(), 1)
}

func TestEnsureDefault(t *testing.T) {
	r := newTestRegistry(newMemStore())
	ctx := context.Background()

	deck, err := r.EnsureDefault(ctx, "Default")
	require.NoError(t, err)
	require.Equal(t, "Default", deck.Name)

	again, err := r.EnsureDefault(ctx, "Other")
	require.NoError(t, err)
	require.Equal(t, deck, again)
	require.Len(t, r.List(), 1)
}

func TestWithGateway(t *testing.T) {
	db, err := storage.Open("file:TestRegistryWithGateway?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gw, err := gateway.New(db, nil, gateway.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	ctx := context.Background()

	r := newTestRegistry(gw)
	require.NoError(t, r.Load(ctx))
	deck, err := r.Create(ctx, "Hanzi")
	require.NoError(t, err)

	reloaded := newTestRegistry(gw)
	require.NoError(t, reloaded.Load(ctx))
	active, ok := reloaded.Active()
	require.True(t, ok)
	require.Equal(t, deck, active)
}
