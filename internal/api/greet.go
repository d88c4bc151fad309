package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/graphkeep/internal/model"
)

const maxBodySize = 1 << 20 // 1 MB

type messageResponse struct {
	Message string `json:"message"`
}

// addGreetingRequest is the JSON body for PUT /greet/greeting.
type addGreetingRequest struct {
	Greeting string `json:"greeting"`
}

type entryResponse struct {
	Name string `json:"name"`
	Time string `json:"time"`
}

func (s *Server) handleDefaultGreeting(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: greet(s.deps.Greeting, "World")})
}

// handleGreet greets name and records the visit in the log.
func (s *Server) handleGreet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.deps.Log != nil {
		if _, err := s.deps.Log.AddEntry(r.Context(), name); err != nil {
			s.logger.Error("add log entry", "name", name, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to record greeting")
			return
		}
		s.invalidateEntries(r, name)
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: greet(s.deps.Greeting, name)})
}

func (s *Server) handleRandomGreeting(w http.ResponseWriter, r *http.Request) {
	if s.deps.Greetings == nil {
		s.writeError(w, http.StatusNotFound, "no greeting source configured")
		return
	}
	g, err := s.deps.Greetings.Greeting(r.Context())
	if err != nil {
		s.logger.Error("pick greeting", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to pick greeting")
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: greet(g, chi.URLParam(r, "name"))})
}

func (s *Server) handleAddGreeting(w http.ResponseWriter, r *http.Request) {
	if s.deps.Greetings == nil {
		s.writeError(w, http.StatusNotFound, "no greeting source configured")
		return
	}

	var req addGreetingRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Greeting = strings.TrimSpace(req.Greeting)
	if req.Greeting == "" {
		s.writeError(w, http.StatusBadRequest, "greeting is required")
		return
	}

	if err := s.deps.Greetings.AddGreeting(r.Context(), req.Greeting); err != nil {
		s.logger.Error("add greeting", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to add greeting")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	if s.deps.Log == nil {
		s.writeError(w, http.StatusNotFound, "no greeting log configured")
		return
	}
	entries, err := s.deps.Log.Entries(r.Context())
	if err != nil {
		s.logger.Error("list log entries", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	s.writeJSON(w, http.StatusOK, toEntryResponses(entries))
}

// handleEntriesFor serves one name's entries, through the entry cache when
// one is configured.
func (s *Server) handleEntriesFor(w http.ResponseWriter, r *http.Request) {
	if s.deps.Log == nil {
		s.writeError(w, http.StatusNotFound, "no greeting log configured")
		return
	}
	name := chi.URLParam(r, "name")

	c := s.entries
	var seen uint64
	if c != nil {
		entries, ok, err := c.get(r.Context(), name)
		if err != nil {
			s.logger.Warn("entry cache read", "name", name, "error", err)
		} else if ok {
			s.writeJSON(w, http.StatusOK, toEntryResponses(entries))
			return
		}
		seen = c.version(name)
	}

	entries, err := s.deps.Log.EntriesFor(r.Context(), name)
	if err != nil {
		s.logger.Error("list log entries", "name", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	if c != nil && len(entries) > 0 {
		if _, err := c.fill(r.Context(), name, seen, entries); err != nil {
			s.logger.Warn("entry cache write", "name", name, "error", err)
		}
	}
	s.writeJSON(w, http.StatusOK, toEntryResponses(entries))
}

func (s *Server) invalidateEntries(r *http.Request, name string) {
	if s.entries == nil {
		return
	}
	if err := s.entries.invalidate(r.Context(), name); err != nil {
		s.logger.Warn("entry cache invalidate", "name", name, "error", err)
	}
}

func toEntryResponses(entries []model.LogEntry) []entryResponse {
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = entryResponse{Name: e.Name, Time: e.Time.Format(time.RFC3339)}
	}
	return out
}

func greet(greeting, name string) string {
	return greeting + " " + name + "!"
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
