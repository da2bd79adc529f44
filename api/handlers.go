package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bezzelek/corronaservice/query"
	"github.com/bezzelek/corronaservice/store"
)

// errorBody is the error envelope for every non-2xx response.
type errorBody struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "corronaservice",
		"version": Version,
		"host":    hostname(),
	})
}

// GET /{country}?date=YYYY-MM-DD — cumulative totals up to date (default today).
func (s *Server) handleCountryTotal(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.CountryTotal(r.Context(),
		chi.URLParam(r, "country"), r.URL.Query().Get("date"))
	s.respond(w, sum, err)
}

// GET /{country}/{date} — the exact record for one country and one day.
func (s *Server) handleCountryOnDate(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.CountryOnDate(r.Context(),
		chi.URLParam(r, "country"), chi.URLParam(r, "date"))
	s.respond(w, sum, err)
}

// GET /world?date=YYYY-MM-DD — global cumulative totals up to date.
func (s *Server) handleWorldTotal(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.WorldTotal(r.Context(), r.URL.Query().Get("date"))
	s.respond(w, sum, err)
}

// GET /world/{date} — global totals for exactly one day.
func (s *Server) handleWorldOnDate(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.WorldOnDate(r.Context(), chi.URLParam(r, "date"))
	s.respond(w, sum, err)
}

// GET /ingest/log?limit=N — recent ingestion cycles, newest first.
func (s *Server) handleIngestLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid parameter", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.store.CycleHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("api: cycle history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if entries == nil {
		entries = []*store.CycleEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// respond maps engine results to the wire: ValidationError → 400,
// NotFound → 404, anything else → 500.
func (s *Server) respond(w http.ResponseWriter, sum *query.Summary, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sum)
	case errors.Is(err, query.ErrNotFound):
		writeError(w, http.StatusNotFound, "no data found", "no records match the requested country and date")
	default:
		var ve *query.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, "invalid parameter", ve.Error())
			return
		}
		s.logger.Error("api: query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorBody{Message: message, Details: details})
}
