package daemon

import (
	"net/http"
	"strconv"
	"strings"

	"depot/internal/api"
)

func (s *apiServer) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	locale := strings.TrimSpace(r.URL.Query().Get("locale"))
	entries, err := s.librarySvc.List(r.Context(), locale)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LibraryListResponse{Entries: entries})
}

func (s *apiServer) handleLibraryTitle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	titleID := strings.TrimPrefix(r.URL.Path, "/api/library/")
	if titleID == "" || strings.Contains(titleID, "/") {
		s.writeError(w, http.StatusNotFound, "title not found")
		return
	}
	detail, err := s.librarySvc.Describe(r.Context(), titleID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if detail == nil {
		s.writeError(w, http.StatusNotFound, "title not found")
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	scope, err := api.ParseSearchScope(query.Get("scope"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))

	response, err := s.librarySvc.Search(r.Context(), api.SearchRequest{
		Query:  query.Get("q"),
		Scope:  scope,
		Locale: strings.TrimSpace(query.Get("locale")),
		Limit:  limit,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response)
}
