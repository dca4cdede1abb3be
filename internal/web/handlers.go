package web

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/conorfennell/knoldeck/internal/seed"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/conorfennell/knoldeck/internal/srs"
	"github.com/conorfennell/knoldeck/internal/stats"
)

type statusResponse struct {
	Namespace string       `json:"namespace"`
	Status    stats.Status `json:"status"`
	Sync      string       `json:"sync"`
	SyncError string       `json:"sync_error,omitempty"`
	Malformed bool         `json:"malformed,omitempty"`
}

// handleStatus returns the status line and the sync indicator.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Namespace: s.session.Namespace(),
		Status:    stats.Count(s.session.Cards(), s.now(), s.opts.ExcludeNew),
		Sync:      "local",
		Malformed: s.session.Loaded().Malformed,
	}
	if s.opts.Sync != nil {
		st, err := s.opts.Sync.Status()
		resp.Sync = st.String()
		if err != nil {
			resp.SyncError = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStats returns maturity, forecast and today's review count.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := stats.Build(r.Context(), s.session.Namespace(), s.session.Cards(), s.now(),
		s.opts.ExcludeNew, s.opts.Reviews)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleReload re-reads the open deck, discarding unsaved state. It clears
// a conflict.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.session.Reload(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handleStatus(w, r)
}

type seedResponse struct {
	Sources int      `json:"sources"`
	Entries int      `json:"entries"`
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Pruned  int      `json:"pruned"`
	Errors  []string `json:"errors,omitempty"`
}

// handleSeed runs seed source sync in the foreground.
func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	if s.opts.Seed == nil {
		writeError(w, http.StatusNotFound, "no seed sources configured")
		return
	}
	report, err := s.opts.Seed(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := seedResponse{
		Sources: report.Sources,
		Entries: report.Entries,
		Added:   report.Result.Added,
		Updated: report.Result.Updated,
		Pruned:  report.Result.Pruned,
	}
	for _, e := range report.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

type nextResponse struct {
	Card    cardResponse      `json:"card"`
	Buttons map[string]string `json:"buttons"`
}

// handleNext selects the next card and the label of each button.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if s.session.Namespace() == "" {
		s.fail(w, r, session.ErrNoNamespace)
		return
	}
	card, ok := s.session.Next()
	if !ok {
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	labels, err := s.session.Preview(card.Key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nextResponse{Card: toCardResponse(card), Buttons: buttonLabels(labels)})
}

// handlePreview returns the interval each button would schedule.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	labels, err := s.session.Preview(mux.Vars(r)["key"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buttonLabels(labels))
}

func buttonLabels(labels map[srs.Rating]string) map[string]string {
	out := make(map[string]string, len(labels))
	for rating, label := range labels {
		out[rating.String()] = label
	}
	return out
}

type gradeRequest struct {
	Rating string `json:"rating" validate:"required"`
}

// handleGrade applies a review. A failed save still returns the new state
// in memory, so the error is reported alongside it.
func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	rating, err := srs.ParseRating(req.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	card, err := s.session.Grade(r.Context(), mux.Vars(r)["key"], rating)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card))
}

// handleGetCard looks a card up, ignoring case when there is no exact match.
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, ok := s.session.Lookup(mux.Vars(r)["key"])
	if !ok {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card))
}

type addRequest struct {
	Key  string   `json:"key" validate:"required_without_all=Keys Text,max=256"`
	Keys []string `json:"keys" validate:"max=10000,dive,max=256"`
	// Text adds every distinct Han character it contains.
	Text string `json:"text" validate:"max=100000"`
}

type addResponse struct {
	Added   int `json:"added"`
	Ignored int `json:"ignored"`
}

// handleAddCards creates cards for new keys. Existing cards are left alone.
func (s *Server) handleAddCards(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	keys := append([]string{}, req.Keys...)
	if req.Key != "" {
		keys = append(keys, req.Key)
	}
	keys = append(keys, seed.HanCharacters(req.Text)...)

	added, ignored, err := s.session.AddMany(r.Context(), keys)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if added > 0 {
		code = http.StatusCreated
	}
	writeJSON(w, code, addResponse{Added: added, Ignored: ignored})
}

// handleDeleteCard removes a card and its progress.
func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}
	if err := s.session.Delete(r.Context(), mux.Vars(r)["key"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
