package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/crucible/internal/result"
)

// cacheRecordResponse is the JSON response for GET /v1/cache/{key}.
type cacheRecordResponse struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	WrittenAt time.Time       `json:"written_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func (s *Server) handleGetCacheRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	rec, err := s.engine.ResultStore().Get(r.Context(), key)
	if errors.Is(err, result.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "cache record not found")
		return
	}
	if errors.Is(err, result.ErrExpired) {
		s.writeError(w, http.StatusGone, "cache record expired")
		return
	}
	if err != nil {
		s.logger.Error("get cache record", "key", key, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get cache record")
		return
	}

	s.writeJSON(w, http.StatusOK, cacheRecordResponse{
		Key:       rec.Key,
		Value:     rec.Value,
		WrittenAt: rec.WrittenAt,
		ExpiresAt: rec.ExpiresAt,
	})
}
