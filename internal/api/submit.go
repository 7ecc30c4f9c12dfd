package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/crucible/internal/engine"
	"github.com/seantiz/crucible/internal/model"
)

// submitRequest is the JSON body for POST /v1/tasks/{name}/runs.
type submitRequest struct {
	Inputs         map[string]any `json:"inputs"`
	FlowRunID      string         `json:"flow_run_id"`
	FlowParameters map[string]any `json:"flow_parameters"`
	Tags           []string       `json:"tags"`
	Executor       string         `json:"executor"`
	RefreshCache   *bool          `json:"refresh_cache"`
	Retries        *int           `json:"retries"`
	TimeoutMS      *int           `json:"timeout_ms"`
}

// submissionResponse is returned for asynchronous submissions; the
// submission ID is the poll handle until a terminal run exists.
type submissionResponse struct {
	SubmissionID string      `json:"submission_id"`
	State        model.State `json:"state"`
	Run          *model.Run  `json:"run,omitempty"`
}

func (req *submitRequest) options() engine.Options {
	opts := engine.Options{
		FlowRunID:      req.FlowRunID,
		FlowParameters: req.FlowParameters,
		Tags:           req.Tags,
		Executor:       req.Executor,
		RefreshCache:   req.RefreshCache,
		Retries:        req.Retries,
	}
	if req.TimeoutMS != nil {
		d := time.Duration(*req.TimeoutMS) * time.Millisecond
		opts.Timeout = &d
	}
	return opts
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req submitRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if _, err := s.engine.Catalog().Resolve(name); err != nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	// Submissions outlive the request: a client disconnect must not cancel
	// the run.
	future, err := s.engine.SubmitByName(context.WithoutCancel(r.Context()), name, req.Inputs, req.options())
	if err != nil {
		s.logger.Error("submit task", "task", name, "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		run, err := future.Wait(r.Context())
		if err != nil {
			s.writeError(w, http.StatusRequestTimeout, "wait aborted: "+err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, run)
		return
	}

	id := model.NewID()
	s.mu.Lock()
	s.submissions[id] = future
	s.mu.Unlock()

	s.writeJSON(w, http.StatusAccepted, submissionResponse{
		SubmissionID: id,
		State:        future.State(),
	})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	future, ok := s.submissions[id]
	s.mu.Unlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	resp := submissionResponse{SubmissionID: id, State: future.State()}
	if future.Resolved() {
		run, err := future.Wait(r.Context())
		if err != nil {
			s.logger.Error("resolve submission", "submission_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to resolve submission")
			return
		}
		resp.Run = run

		// The poll handle is spent once the terminal run is handed back;
		// the run itself stays queryable through the registry.
		s.mu.Lock()
		delete(s.submissions, id)
		s.mu.Unlock()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	future, ok := s.submissions[id]
	s.mu.Unlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	future.Cancel()
	s.writeJSON(w, http.StatusAccepted, submissionResponse{
		SubmissionID: id,
		State:        future.State(),
	})
}
