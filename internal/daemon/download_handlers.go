package daemon

import (
	"encoding/json"
	"net/http"
	"strings"

	"depot/internal/api"
	"depot/internal/downloads"
)

func (s *apiServer) handleDownloads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listDownloads(w, r)
	case http.MethodPost:
		s.createDownloads(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listDownloads(w http.ResponseWriter, r *http.Request) {
	var statuses []downloads.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		statuses = append(statuses, downloads.Status(strings.ToLower(trimmed)))
	}
	items, err := s.downloadSvc.List(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DownloadListResponse{Items: items})
}

func (s *apiServer) createDownloads(w http.ResponseWriter, r *http.Request) {
	var req api.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case strings.TrimSpace(req.URL) != "":
		item, err := s.downloadSvc.Add(r.Context(), req.URL)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.DownloadItemResponse{Item: *item})
	case strings.TrimSpace(req.Provider) != "":
		items, err := s.downloadSvc.Import(r.Context(), req.Provider, req.Ref)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.DownloadListResponse{Items: items})
	default:
		s.writeError(w, http.StatusBadRequest, "url or provider is required")
	}
}

func (s *apiServer) handleDownloadItem(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/api/downloads/")
	switch tail {
	case "stats":
		s.downloadStats(w, r)
		return
	case "cleanup":
		s.downloadCleanup(w, r)
		return
	}

	id, action, _ := strings.Cut(tail, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "download not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		item, err := s.downloadSvc.Describe(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if item == nil {
			s.writeError(w, http.StatusNotFound, "download not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.DownloadItemResponse{Item: *item})
	case "cancel", "pause", "resume":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.downloadAction(w, r, id, action)
	default:
		s.writeError(w, http.StatusNotFound, "download not found")
	}
}

func (s *apiServer) downloadAction(w http.ResponseWriter, r *http.Request, id, action string) {
	var (
		item *api.DownloadItem
		err  error
	)
	switch action {
	case "cancel":
		item, err = s.downloadSvc.Cancel(r.Context(), id)
	case "pause":
		item, err = s.downloadSvc.Pause(r.Context(), id)
	case "resume":
		item, err = s.downloadSvc.Resume(r.Context(), id)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "download not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.DownloadItemResponse{Item: *item})
}

func (s *apiServer) downloadStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.downloadSvc.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) downloadCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	removed, err := s.downloadSvc.Cleanup(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CleanupResponse{Removed: removed})
}
