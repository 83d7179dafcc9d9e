package daemon

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"depot/internal/api"
)

func (s *apiServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.catalogSvc.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	locale := r.URL.Query().Get("locale")
	if err := s.daemon.TriggerCatalogRefresh(locale); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.AcceptedResponse{Status: "refresh started"})
}

func (s *apiServer) handleUpstream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var sources []api.UpstreamSource
	if s.daemon.upstream != nil {
		sources = api.FromSourceStatuses(s.daemon.upstream.Status())
	}
	s.writeJSON(w, http.StatusOK, api.UpstreamListResponse{Sources: sources})
}

func (s *apiServer) handleUpstreamSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.TriggerUpstreamSync(); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.AcceptedResponse{Status: "sync started"})
}

// handleIndex renders the published shop index. Served at /shop.json
// for console clients and /api/index for everything else.
func (s *apiServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	index, err := s.daemon.builder.Build(r.Context(), s.baseURL(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, index)
}

// handleFile streams a library file by row id. ServeContent handles
// range requests, which console clients rely on for install resume.
func (s *apiServer) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/files/")
	if idStr == "" || strings.Contains(idStr, "/") {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	file, err := s.daemon.library.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if file == nil {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}

	f, err := os.Open(file.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.writeError(w, http.StatusNotFound, "file missing on disk")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	// Package transfers run far longer than the server write timeout
	// allows for JSON responses.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	name := filepath.Base(file.Path)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
