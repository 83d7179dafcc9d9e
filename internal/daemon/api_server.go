package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"depot/internal/api"
	"depot/internal/config"
	"depot/internal/errs"
	"depot/internal/library"
	"depot/internal/logging"
	"depot/internal/preflight"
)

type apiServer struct {
	bind        string
	externalURL string
	logger      *slog.Logger
	daemon      *Daemon

	downloadSvc *api.DownloadService
	librarySvc  *api.LibraryService
	catalogSvc  *api.CatalogService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Server.Bind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:        bind,
		externalURL: strings.TrimRight(strings.TrimSpace(cfg.Server.ExternalURL), "/"),
		logger:      logger,
		daemon:      d,
		downloadSvc: d.downloadSvc,
		librarySvc:  d.librarySvc,
		catalogSvc:  d.catalogSvc,
	}

	mux.HandleFunc("/", srv.handleRoot)
	mux.HandleFunc("/shop.json", srv.handleIndex)
	mux.HandleFunc("/files/", srv.handleFile)
	mux.HandleFunc("/api/index", srv.handleIndex)
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/scan", srv.handleScan)
	mux.HandleFunc("/api/library", srv.handleLibrary)
	mux.HandleFunc("/api/library/", srv.handleLibraryTitle)
	mux.HandleFunc("/api/search", srv.handleSearch)
	mux.HandleFunc("/api/downloads", srv.handleDownloads)
	mux.HandleFunc("/api/downloads/", srv.handleDownloadItem)
	mux.HandleFunc("/api/catalog", srv.handleCatalog)
	mux.HandleFunc("/api/catalog/refresh", srv.handleCatalogRefresh)
	mux.HandleFunc("/api/upstream", srv.handleUpstream)
	mux.HandleFunc("/api/upstream/sync", srv.handleUpstreamSync)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", slog.String("address", listener.Addr().String()))
	return nil
}

// addr reports the bound listen address, which differs from the
// configured bind when port 0 was requested.
func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// baseURL picks the advertised URL for index entries: the configured
// external URL when set, otherwise whatever host the request came in
// on.
func (s *apiServer) baseURL(r *http.Request) string {
	if s.externalURL != "" {
		return s.externalURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// handleRoot serves the shop index to clients configured with a bare
// host and nothing else.
func (s *apiServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.handleIndex(w, r)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	results := preflight.RunAll(r.Context(), s.daemon.cfg, s.daemon.catalog)
	report := api.HealthReport{
		OK:     len(preflight.FatalFailures(results)) == 0,
		Checks: checksToAPI(results),
	}
	status := http.StatusOK
	if !report.OK {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	force := r.URL.Query().Get("force") == "1" || strings.EqualFold(r.URL.Query().Get("force"), "true")
	if err := s.daemon.TriggerScan(force); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.AcceptedResponse{Status: "scan started"})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errs.IsConflict(err), errors.Is(err, library.ErrScanInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
	case errs.IsDecode(err), errors.Is(err, api.ErrQueryTooShort):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
