package api

import (
	"net/http"

	"github.com/seantiz/crucible/internal/model"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int                 `json:"total"`
	ByState       map[model.State]int `json:"by_state"`
	ByTask        map[string]int      `json:"by_task"`
	AvgDurationMS float64             `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Runs().Stats()

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByState:       stats.CountByState,
		ByTask:        stats.CountByTask,
		AvgDurationMS: stats.AvgDurationMS,
	})
}
