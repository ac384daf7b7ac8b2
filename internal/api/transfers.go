package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/courier/internal/dispatch"
	"github.com/seantiz/courier/internal/model"
	"github.com/seantiz/courier/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// submitTransferRequest is the JSON body for POST /v1/transfers.
type submitTransferRequest struct {
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body"`
	Paused  bool                `json:"paused"`
}

// listTransfersResponse wraps the paginated list response.
type listTransfersResponse struct {
	Transfers []*model.TransferRecord `json:"transfers"`
	Total     int                     `json:"total"`
	Limit     int                     `json:"limit"`
	Offset    int                     `json:"offset"`
}

func (s *Server) handleSubmitTransfer(w http.ResponseWriter, r *http.Request) {
	var req submitTransferRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		s.writeError(w, http.StatusBadRequest, "url must be absolute http or https")
		return
	}

	record, err := s.dispatcher.Submit(r.Context(), dispatch.Request{
		Method: req.Method,
		URL:    req.URL,
		Header: http.Header(req.Headers),
		Body:   []byte(req.Body),
		Paused: req.Paused,
	})
	if err != nil {
		s.logger.Error("submit transfer", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "failed to submit transfer")
		return
	}

	s.writeJSON(w, http.StatusAccepted, record)
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tr, err := s.store.GetTransfer(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "transfer not found")
		return
	}
	if err != nil {
		s.logger.Error("get transfer", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get transfer")
		return
	}

	s.writeJSON(w, http.StatusOK, tr)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	transfers, total, err := s.store.ListTransfers(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list transfers", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}

	if transfers == nil {
		transfers = []*model.TransferRecord{}
	}

	s.writeJSON(w, http.StatusOK, listTransfersResponse{
		Transfers: transfers,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

func (s *Server) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.dispatcher.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "transfer not found")
		case errors.Is(err, store.ErrInvalidTransition):
			s.writeError(w, http.StatusConflict, "transfer already resolved")
		default:
			s.logger.Error("cancel transfer", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to cancel transfer")
		}
		return
	}

	tr, err := s.store.GetTransfer(r.Context(), id)
	if err != nil {
		s.logger.Error("get cancelled transfer", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve transfer")
		return
	}

	s.writeJSON(w, http.StatusOK, tr)
}

func (s *Server) handleResumeTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.dispatcher.Resume(id); err != nil {
		if errors.Is(err, dispatch.ErrNotActive) {
			s.writeError(w, http.StatusConflict, "transfer not active")
			return
		}
		s.logger.Error("resume transfer", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to resume transfer")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
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

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
