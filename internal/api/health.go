package api

import (
	"net/http"

	"github.com/seantiz/graphkeep/internal/health"
)

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleHealth runs the store check. DOWN answers 503 so load balancers can
// act on the status code alone.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		s.writeError(w, http.StatusNotFound, "no health check configured")
		return
	}
	resp := s.deps.Health.Check(r.Context())
	status := http.StatusOK
	if resp.Status != health.StatusUp {
		status = http.StatusServiceUnavailable
		s.logger.Warn("store check failed", "check", resp.Name, "data", resp.Data)
	}
	s.writeJSON(w, status, resp)
}
