package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/registry"
)

type decksResponse struct {
	Decks  []domain.Deck `json:"decks"`
	Active string        `json:"active"`
}

type deckRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

func (s *Server) decks() decksResponse {
	resp := decksResponse{Decks: s.registry.List()}
	if active, ok := s.registry.Active(); ok {
		resp.Active = active.ID
	}
	return resp
}

// handleListDecks returns the decks in display order and the active one.
func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.decks())
}

// handleCreateDeck adds a deck. The first deck becomes active and is opened.
func (s *Server) handleCreateDeck(w http.ResponseWriter, r *http.Request) {
	var req deckRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	deck, err := s.registry.Create(r.Context(), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.openActive(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, deck)
}

// handleRenameDeck changes a deck's display name.
func (s *Server) handleRenameDeck(w http.ResponseWriter, r *http.Request) {
	var req deckRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	deck, err := s.registry.Rename(r.Context(), mux.Vars(r)["id"], req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

// handleDeleteDeck removes a deck and its cards, then opens whichever deck
// became active.
func (s *Server) handleDeleteDeck(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}
	err := s.registry.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil && errors.Is(err, registry.ErrNotFound) {
		s.fail(w, r, err)
		return
	}
	// A partly failed delete still removes the deck from the registry.
	if oerr := s.openActive(r.Context()); oerr != nil {
		err = errors.Join(err, oerr)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.decks())
}

// handleActivateDeck switches the open deck.
func (s *Server) handleActivateDeck(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.SetActive(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.openActive(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.decks())
}

// openActive opens the registry's active deck in the session unless it is
// already open. With no decks left the session is closed.
func (s *Server) openActive(ctx context.Context) error {
	active, ok := s.registry.Active()
	if !ok {
		s.session.Close()
		return nil
	}
	if active.ID == s.session.Namespace() {
		return nil
	}
	_, err := s.session.Open(ctx, active.ID)
	return err
}
