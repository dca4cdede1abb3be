// Package blobstoretest provides an in-memory document store speaking the
// Gist-compatible protocol, for tests.
package blobstoretest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

// Server is a fake document store holding a single document.
type Server struct {
	*httptest.Server

	ID    string
	Token string

	mu      sync.Mutex
	files   map[string]string
	status  int
	gets    int
	patches int
}

// NewServer starts a fake store for document id, accepting token.
func NewServer(id, token string) *Server {
	s := &Server{ID: id, Token: token, files: make(map[string]string)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetFile writes a file directly, as a concurrent writer would.
func (s *Server) SetFile(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = content
}

// File returns the current content of name.
func (s *Server) File(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.files[name]
	return c, ok
}

// FailWith makes every request answer with status. Zero restores service.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Gets reports how many GET requests were served.
func (s *Server) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// Patches reports how many successful PATCH requests were served.
func (s *Server) Patches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patches
}

type file struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type document struct {
	ID    string          `json:"id"`
	Files map[string]file `json:"files"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != 0 {
		http.Error(w, http.StatusText(s.status), s.status)
		return
	}
	if r.Header.Get("Authorization") != "token "+s.Token {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}
	if strings.TrimPrefix(r.URL.Path, "/gists/") != s.ID {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.gets++
	case http.MethodPatch:
		var body struct {
			Files map[string]*file `json:"files"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		for name, f := range body.Files {
			if f == nil {
				delete(s.files, name)
				continue
			}
			s.files[name] = f.Content
		}
		s.patches++
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc := document{ID: s.ID, Files: make(map[string]file, len(s.files))}
	for name, content := range s.files {
		doc.Files[name] = file{Filename: name, Content: content}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", s.etag())
	_ = json.NewEncoder(w).Encode(doc)
}

func (s *Server) etag() string {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(s.files[name]))
		h.Write([]byte{0})
	}
	return `"` + hex.EncodeToString(h.Sum(nil))[:16] + `"`
}
