package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spacebio/engine/internal/corpus"
	"github.com/spacebio/engine/internal/export"
	"github.com/spacebio/engine/internal/llm"
	"github.com/spacebio/engine/internal/logging"
	"github.com/spacebio/engine/internal/retrieval"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	k, err := intParam(q.Get("k"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "k must be a positive integer")
		return
	}
	filter, err := retrieval.ParseYearSpec(q.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, err := s.svc.Search(r.Context(), retrieval.SearchRequest{Query: q.Get("q"), K: k, Filter: filter})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, statusCode(resp.Status), resp)
}

type chatRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode"`
	Year     string `json:"year"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	mode, err := llm.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	filter, err := retrieval.ParseYearSpec(req.Year)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, err := s.svc.Chat(r.Context(), retrieval.ChatRequest{Question: req.Question, Mode: mode, Filter: filter})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, statusCode(resp.Status), resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "statistics are not available")
		return
	}
	stats, err := s.stats.Stats()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePaper(w http.ResponseWriter, r *http.Request) {
	id, ok := paperID(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.Paper(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type citationResponse struct {
	ID       int          `json:"id"`
	Style    export.Style `json:"style"`
	Key      string       `json:"key"`
	Citation string       `json:"citation"`
}

func (s *Server) handleCitation(w http.ResponseWriter, r *http.Request) {
	id, ok := paperID(w, r)
	if !ok {
		return
	}
	style, err := export.ParseStyle(r.URL.Query().Get("style"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	rec, err := s.svc.Paper(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	text, err := export.Format(rec, style)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, citationResponse{ID: id, Style: style, Key: export.CitationKey(rec), Citation: text})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := paperID(w, r)
	if !ok {
		return
	}
	mode, err := llm.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	resp, err := s.svc.Summarize(r.Context(), id, mode)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	id, ok := paperID(w, r)
	if !ok {
		return
	}
	resp, err := s.svc.Entities(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type similarResponse struct {
	ID      int                `json:"id"`
	Results []retrieval.Result `json:"results"`
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id, ok := paperID(w, r)
	if !ok {
		return
	}
	k, err := intParam(r.URL.Query().Get("k"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "k must be a positive integer")
		return
	}
	results, err := s.svc.Similar(r.Context(), id, k)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, similarResponse{ID: id, Results: results})
}

// writeServiceError maps pipeline errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, retrieval.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, export.ErrUnknownStyle):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, corpus.ErrDataUnavailable):
		logging.FromContext(r.Context()).Error("corpus unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "data_unavailable", "the publication corpus is not available")
	default:
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// statusCode maps a per-request status onto an HTTP status. The body
// always carries the displayable message.
func statusCode(status retrieval.Status) int {
	switch status {
	case retrieval.StatusEmptyQuery:
		return http.StatusBadRequest
	case retrieval.StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

func paperID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "paper id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

// intParam parses an optional positive integer. Empty yields 0.
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
