// Package reqresfake serves an in-process copy of the reqres users API. It
// mirrors the public service closely enough for the scenario set and the
// contract document to pass against it.
package reqresfake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/l0p7/usercheck/internal/users"
)

const (
	// DefaultAPIKeyHeader is the header the public service expects.
	DefaultAPIKeyHeader = "x-api-key"
	// DefaultAPIKey is the free-tier key the public service documents.
	DefaultAPIKey = "reqres-free-v1"
	// DefaultPerPage matches the public page size.
	DefaultPerPage = 6
	// BasePath is where the users routes are mounted.
	BasePath = "/api"
)

var support = users.Support{
	URL:  "https://contentcaddy.io?utm_source=reqres&utm_medium=json&utm_campaign=referral",
	Text: "Tired of writing endless social media content? Let Content Caddy generate it for you.",
}

// Options tune the fake. The zero value serves the seeded users and accepts
// any request; set APIKey to enforce the key header.
type Options struct {
	APIKeyHeader string
	APIKey       string
	Users        []users.UserRecord
	PerPage      int
	Now          func() time.Time
}

// RecordedRequest is one request the fake received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Server is the fake users API.
type Server struct {
	router  chi.Router
	opts    Options
	nextID  atomic.Int64
	mu      sync.Mutex
	records []RecordedRequest
}

// New builds the fake around opts.
func New(opts Options) *Server {
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = DefaultAPIKeyHeader
	}
	if opts.Users == nil {
		opts.Users = SeedUsers()
	}
	if opts.PerPage <= 0 {
		opts.PerPage = DefaultPerPage
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{opts: opts}
	s.nextID.Store(100)

	r := chi.NewRouter()
	r.Use(s.recordRequests)
	r.Route(BasePath, func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/users", s.listUsers)
		r.Post("/users", s.createUser)
		r.Get("/users/{id}", s.getUser)
		r.Put("/users/{id}", s.updateUser)
		r.Patch("/users/{id}", s.updateUser)
		r.Delete("/users/{id}", s.deleteUser)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{})
	})
	s.router = r
	return s
}

// ServeHTTP dispatches to the users routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.records))
	copy(out, s.records)
	return out
}

// Reset clears the request log.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// SeedUsers returns the twelve users the public service ships with.
func SeedUsers() []users.UserRecord {
	seed := []struct{ email, first, last string }{
		{"george.bluth@reqres.in", "George", "Bluth"},
		{"janet.weaver@reqres.in", "Janet", "Weaver"},
		{"emma.wong@reqres.in", "Emma", "Wong"},
		{"eve.holt@reqres.in", "Eve", "Holt"},
		{"charles.morris@reqres.in", "Charles", "Morris"},
		{"tracey.ramos@reqres.in", "Tracey", "Ramos"},
		{"michael.lawson@reqres.in", "Michael", "Lawson"},
		{"lindsay.ferguson@reqres.in", "Lindsay", "Ferguson"},
		{"tobias.funke@reqres.in", "Tobias", "Funke"},
		{"byron.fields@reqres.in", "Byron", "Fields"},
		{"george.edwards@reqres.in", "George", "Edwards"},
		{"rachel.howell@reqres.in", "Rachel", "Howell"},
	}
	out := make([]users.UserRecord, len(seed))
	for i, u := range seed {
		rec := users.NewUserRecord(u.email, u.first, u.last)
		rec.SetID(i + 1)
		rec.SetAvatar(fmt.Sprintf("https://reqres.in/img/faces/%d-image.jpg", i+1))
		out[i] = rec
	}
	return out
}

func (s *Server) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			data, err := io.ReadAll(r.Body)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
				return
			}
			body = data
			r.Body = io.NopCloser(bytes.NewReader(data))
		}
		s.mu.Lock()
		s.records = append(s.records, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		switch r.Header.Get(s.opts.APIKeyHeader) {
		case "":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Missing API key"})
		case s.opts.APIKey:
			next.ServeHTTP(w, r)
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid API key"})
		}
	})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	perPage := s.opts.PerPage
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			perPage = n
		}
	}
	total := len(s.opts.Users)
	totalPages := (total + perPage - 1) / perPage
	data := []users.UserRecord{}
	if start := (page - 1) * perPage; start < total {
		end := min(start+perPage, total)
		data = append(data, s.opts.Users[start:end]...)
	}
	writeJSON(w, http.StatusOK, users.UserPage{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		Data:       data,
		Support:    support,
	})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, users.SingleUser{Data: user, Support: support})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}
	payload["id"] = strconv.FormatInt(s.nextID.Add(1), 10)
	payload["createdAt"] = s.timestamp()
	writeJSON(w, http.StatusCreated, payload)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}
	payload["updatedAt"] = s.timestamp()
	writeJSON(w, http.StatusOK, payload)
}

// deleteUser answers 204 for any id, like the public service: nothing is
// actually stored.
func (s *Server) deleteUser(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(raw string) (users.UserRecord, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return users.UserRecord{}, false
	}
	for _, u := range s.opts.Users {
		if v, ok := u.IDValue(); ok && v == id {
			return u, true
		}
	}
	return users.UserRecord{}, false
}

func (s *Server) timestamp() string {
	return s.opts.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	payload := map[string]any{}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return nil, false
	}
	if len(data) == 0 {
		return payload, true
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Bad Request"})
		return nil, false
	}
	return payload, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
