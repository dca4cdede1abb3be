// Package web exposes the review session and deck registry as a JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/gateway"
	"github.com/conorfennell/knoldeck/internal/registry"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/conorfennell/knoldeck/internal/srs"
	"github.com/conorfennell/knoldeck/internal/stats"
	ksync "github.com/conorfennell/knoldeck/internal/sync"
)

// SyncStatus reports the sync indicator. *gateway.Gateway implements it.
type SyncStatus interface {
	Status() (gateway.Status, error)
}

// Options holds the server's optional dependencies.
type Options struct {
	Sync    SyncStatus
	Reviews stats.ReviewSource
	// Seed re-runs seed source sync for the open deck.
	Seed func(ctx context.Context) (ksync.Report, error)
	// ExcludeNew leaves never-reviewed cards out of the due count.
	ExcludeNew bool
	Now        func() time.Time
	Logger     *slog.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	session  *session.Session
	registry *registry.Registry
	opts     Options
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
	router   *mux.Router
}

// NewServer creates and configures a new server.
func NewServer(sess *session.Session, reg *registry.Registry, opts Options) *Server {
	s := &Server{
		session:  sess,
		registry: reg,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      opts.Logger,
		now:      opts.Now,
		router:   mux.NewRouter(),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Methods(http.MethodGet).Path("/status").HandlerFunc(s.handleStatus)
	api.Methods(http.MethodGet).Path("/stats").HandlerFunc(s.handleStats)
	api.Methods(http.MethodPost).Path("/reload").HandlerFunc(s.handleReload)
	api.Methods(http.MethodPost).Path("/seed").HandlerFunc(s.handleSeed)

	api.Methods(http.MethodGet).Path("/review/next").HandlerFunc(s.handleNext)
	api.Methods(http.MethodPost).Path("/cards").HandlerFunc(s.handleAddCards)
	api.Methods(http.MethodGet).Path("/cards/{key}").HandlerFunc(s.handleGetCard)
	api.Methods(http.MethodDelete).Path("/cards/{key}").HandlerFunc(s.handleDeleteCard)
	api.Methods(http.MethodGet).Path("/cards/{key}/preview").HandlerFunc(s.handlePreview)
	api.Methods(http.MethodPost).Path("/cards/{key}/grade").HandlerFunc(s.handleGrade)

	api.Methods(http.MethodGet).Path("/decks").HandlerFunc(s.handleListDecks)
	api.Methods(http.MethodPost).Path("/decks").HandlerFunc(s.handleCreateDeck)
	api.Methods(http.MethodPatch).Path("/decks/{id}").HandlerFunc(s.handleRenameDeck)
	api.Methods(http.MethodDelete).Path("/decks/{id}").HandlerFunc(s.handleDeleteDeck)
	api.Methods(http.MethodPost).Path("/decks/{id}/activate").HandlerFunc(s.handleActivateDeck)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Debug("handled", "method", r.Method, "url", r.URL.String(), "status", m.Code,
			"duration", m.Duration)
	})
}

// decodeBody reads a JSON body into dst and validates it.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// confirmed reports whether a destructive request carries confirm=true.
// The front-end asks the user before sending it.
func confirmed(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("confirm") == "true" {
		return true
	}
	writeError(w, http.StatusPreconditionRequired, "destructive action requires confirm=true")
	return false
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// fail maps a domain error to a status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrUnknownCard), errors.Is(err, registry.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, session.ErrEmptyKey), errors.Is(err, registry.ErrEmptyName):
		code = http.StatusBadRequest
	case errors.Is(err, session.ErrNoNamespace), errors.Is(err, registry.ErrDuplicateName),
		errors.Is(err, gateway.ErrConflict):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "url", r.URL.String(), "error", err)
	}
	writeError(w, code, err.Error())
}

type cardResponse struct {
	Key      string    `json:"key"`
	Interval int       `json:"interval"`
	Ease     int       `json:"ease"`
	Due      time.Time `json:"due"`
	Question string    `json:"question,omitempty"`
	Answer   string    `json:"answer,omitempty"`
	Label    string    `json:"label"`
}

func toCardResponse(c domain.Card) cardResponse {
	return cardResponse{
		Key:      c.Key,
		Interval: c.Interval,
		Ease:     c.Ease,
		Due:      c.Due,
		Question: c.Question,
		Answer:   c.Answer,
		Label:    srs.FormatCardInterval(c.Interval),
	}
}
