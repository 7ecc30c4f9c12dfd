package api

import "net/http"

// healthResponse reports liveness plus a coarse view of what the engine
// is serving, so probes can distinguish an empty instance from a wired one.
type healthResponse struct {
	Status    string `json:"status"`
	Tasks     int    `json:"tasks"`
	Executors int    `json:"executors"`
	Runs      int    `json:"runs"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Tasks:     len(s.engine.Catalog().List()),
		Executors: len(s.execs.List()),
		Runs:      s.engine.Runs().Stats().Total,
	})
}
