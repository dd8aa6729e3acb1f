package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/site-screenshot-crawler/internal/artifact"
	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
	"github.com/JakeFAU/site-screenshot-crawler/internal/domains"
)

type addDomainsRequest struct {
	Domains []string `json:"domains"`
}

type renameDomainRequest struct {
	Name string `json:"name"`
}

func (s *Server) listDomains(w http.ResponseWriter, _ *http.Request) {
	list, err := s.deps.Domains.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load domain list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": list})
}

func (s *Server) addDomains(w http.ResponseWriter, r *http.Request) {
	var req addDomainsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Domains) == 0 {
		writeError(w, http.StatusBadRequest, "domains required")
		return
	}
	added, err := s.deps.Domains.Add(req.Domains...)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if added == nil {
		added = []string{}
	}
	status := http.StatusCreated
	if len(added) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"added": added})
}

func (s *Server) renameDomain(w http.ResponseWriter, r *http.Request) {
	var req renameDomainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from := chi.URLParam(r, "domain")
	if err := s.deps.Domains.Rename(from, req.Name); err != nil {
		writeError(w, domainErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"from": from, "to": req.Name})
}

func (s *Server) removeDomain(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if err := s.deps.Domains.Remove(domain); err != nil {
		writeError(w, domainErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func domainErrorStatus(err error) int {
	switch {
	case errors.Is(err, domains.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domains.ErrExists):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) tailLogs(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		n = parsed
	}
	lines, err := s.deps.Logs.Tail(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) findScreenshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := artifact.Filter{
		Date:   q.Get("date"),
		Domain: q.Get("domain"),
		Device: crawler.DeviceName(q.Get("device")),
	}
	if filter.Device != "" {
		if _, err := crawler.Profile(filter.Device); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	entries, err := s.deps.Screens.Find(filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if entries == nil {
		entries = []artifact.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"screenshots": entries})
}

func (s *Server) gallery(w http.ResponseWriter, _ *http.Request) {
	dirs, err := s.deps.Screens.Gallery()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list screenshots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gallery": dirs})
}
