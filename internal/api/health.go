package api

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
	Worker string `json:"worker"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := healthResponse{Status: "ok", Worker: "running"}

	// A terminated worker cannot accept new transfers.
	select {
	case <-s.dispatcher.Done():
		status = http.StatusServiceUnavailable
		resp.Status = "degraded"
		resp.Worker = "terminated"
	default:
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
