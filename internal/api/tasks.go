package api

import "net/http"

// listTasksResponse is the JSON response for GET /v1/tasks.
type listTasksResponse struct {
	Tasks []string `json:"tasks"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, listTasksResponse{Tasks: s.engine.Catalog().List()})
}

func (s *Server) handleListExecutors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.execs.List())
}
