package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/casedash/casedash/internal/api"
	"github.com/go-chi/chi/v5"
)

func (s *Server) listCasesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"))
	if err != nil {
		badRequest(w, "page must be an integer")
		return
	}
	pageSize, err := intParam(q.Get("page_size"))
	if err != nil {
		badRequest(w, "page_size must be an integer")
		return
	}

	out, err := s.api.ListCases(r.Context(), api.CaseFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   q.Get("status"),
		District: q.Get("district"),
		Query:    q.Get("q"),
	})
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       out.Items,
		"total":       out.Total,
		"page":        out.Page,
		"page_size":   out.PageSize,
		"total_pages": out.TotalPages(),
		"has_next":    out.HasNext(),
	})
}

func (s *Server) getCaseHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getAccusedHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.GetAccused(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) convictionRatesHandler(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	out, err := s.api.ConvictionRates(r.Context(), rng)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) personnelHandler(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	out, err := s.api.PersonnelScorecards(r.Context(), rng)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) geoHandler(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	out, err := s.api.GeoDistribution(r.Context(), rng)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) sankeyHandler(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	out, err := s.api.ChargesheetFlow(r.Context(), rng)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) trendsHandler(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	g, err := api.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := s.api.Trends(r.Context(), rng, g)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil || reqBody.Question == "" {
		badRequest(w, "Missing required field: question")
		return
	}
	out, err := s.api.Ask(r.Context(), reqBody.Question)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func parseRange(w http.ResponseWriter, r *http.Request) (api.Range, bool) {
	q := r.URL.Query()
	rng, err := api.ParseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		badRequest(w, err.Error())
		return api.Range{}, false
	}
	return rng, true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
