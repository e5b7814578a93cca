// Package api exposes the module registry and the git integration workflow
// over HTTP for editor-style clients. Workflow prompts are held server-side
// so polling clients can answer them.
package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/systemshift/modex/pkg/dispatch"
	"github.com/systemshift/modex/pkg/registry"
	"github.com/systemshift/modex/pkg/workflow"
)

// Pending prompt identifiers reported by the sync status endpoint.
const (
	PromptGitClient     = "git_client"
	PromptModuleFolder  = "module_folder"
	PromptRepositoryURL = "repository_url"
)

// Server holds the HTTP server dependencies. It implements workflow.Events
// so that prompt requests are queryable by clients.
type Server struct {
	registry *registry.Registry
	flow     *workflow.Workflow
	log      zerolog.Logger

	mu          sync.Mutex
	pending     string
	lastMessage string
	lastSuccess bool
}

// New creates an API server around a registry and constructs its workflow
// over the given syncer and settings.
func New(reg *registry.Registry, syncer workflow.Syncer, settings workflow.Settings, log zerolog.Logger) *Server {
	s := &Server{
		registry: reg,
		log:      log.With().Str("component", "api").Logger(),
	}
	s.flow = workflow.New(reg, syncer, settings, s, log)
	return s
}

// Workflow returns the server's workflow engine.
func (s *Server) Workflow() *workflow.Workflow {
	return s.flow
}

// Routes returns the API router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/modules", s.ListModules)
	r.Post("/modules/refresh", s.RefreshModules)
	r.Put("/modules/{id}/enabled", s.SetEnabled)
	r.Post("/modules/{id}/invoke", s.Invoke)
	r.Post("/modules/{id}/sync", s.StartSync)
	r.Get("/sync", s.SyncStatus)
	r.Post("/sync/client-configured", s.ClientConfigured)
	r.Post("/sync/folder-configured", s.FolderConfigured)
	r.Post("/sync/repository-url", s.RepositoryURL)
	r.Post("/sync/cancel", s.CancelSync)
	return r
}

// ModuleInfo is one entry of the module list response.
type ModuleInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Author      string `json:"author,omitempty"`
	Repository  string `json:"repository,omitempty"`
	Enabled     bool   `json:"enabled"`
	Loaded      bool   `json:"loaded"`
}

// ListModules handles GET /modules
func (s *Server) ListModules(w http.ResponseWriter, r *http.Request) {
	records := s.registry.Records()
	infos := make([]ModuleInfo, 0, len(records))
	for _, rec := range records {
		d := rec.Descriptor
		infos = append(infos, ModuleInfo{
			ID:          d.ID,
			Name:        d.Name,
			Version:     d.Version,
			Description: d.Description,
			Author:      d.Author,
			Repository:  d.Repository,
			Enabled:     s.registry.Enabled(d.ID),
			Loaded:      s.registry.Loaded(d.ID),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// RefreshModules handles POST /modules/refresh
func (s *Server) RefreshModules(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Refresh(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetEnabledRequest is the request body for toggling a module.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled handles PUT /modules/{id}/enabled
func (s *Server) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.registry.SetEnabled(id, req.Enabled) {
		http.Error(w, "toggle failed", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// InvokeRequest is the request body for a proxied module call.
type InvokeRequest struct {
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
}

// Invoke handles POST /modules/{id}/invoke. The call goes through the safe
// dispatch proxy, so it succeeds with a typed default even for disabled or
// absent modules.
func (s *Server) Invoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Method == "" {
		http.Error(w, "method is required", http.StatusBadRequest)
		return
	}

	proxy := dispatch.New(s.registry, id, s.log)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": proxy.Invoke(req.Method, req.Args),
	})
}

// StartSync handles POST /modules/{id}/sync
func (s *Server) StartSync(w http.ResponseWriter, r *http.Request) {
	s.flow.Start(chi.URLParam(r, "id"))
	s.SyncStatus(w, r)
}

// SyncStatusResponse reports workflow progress and any pending prompt.
type SyncStatusResponse struct {
	State   workflow.State `json:"state"`
	Module  string         `json:"module,omitempty"`
	Pending string         `json:"pending,omitempty"`
	Message string         `json:"message,omitempty"`
	Success bool           `json:"success,omitempty"`
}

// SyncStatus handles GET /sync
func (s *Server) SyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := SyncStatusResponse{State: s.flow.State()}
	if ctx, ok := s.flow.Current(); ok {
		resp.Module = ctx.ModuleID
	}

	s.mu.Lock()
	resp.Pending = s.pending
	resp.Message = s.lastMessage
	resp.Success = s.lastSuccess
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// ClientConfigured handles POST /sync/client-configured
func (s *Server) ClientConfigured(w http.ResponseWriter, r *http.Request) {
	s.clearPending()
	s.flow.ClientConfigured()
	s.SyncStatus(w, r)
}

// FolderConfigured handles POST /sync/folder-configured
func (s *Server) FolderConfigured(w http.ResponseWriter, r *http.Request) {
	s.clearPending()
	s.flow.FolderConfigured()
	s.SyncStatus(w, r)
}

// RepositoryURLRequest supplies the prompted repository URL.
type RepositoryURLRequest struct {
	URL string `json:"url"`
}

// RepositoryURL handles POST /sync/repository-url
func (s *Server) RepositoryURL(w http.ResponseWriter, r *http.Request) {
	var req RepositoryURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.clearPending()
	s.flow.RepositoryURLProvided(req.URL)
	s.SyncStatus(w, r)
}

// CancelSync handles POST /sync/cancel
func (s *Server) CancelSync(w http.ResponseWriter, r *http.Request) {
	s.flow.Cancel()
	s.SyncStatus(w, r)
}

// workflow.Events implementation

func (s *Server) NeedGitClient() { s.setPending(PromptGitClient) }

func (s *Server) NeedModuleFolder() { s.setPending(PromptModuleFolder) }

func (s *Server) NeedRepositoryURL(string) { s.setPending(PromptRepositoryURL) }

func (s *Server) Completed(success bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = ""
	s.lastSuccess = success
	s.lastMessage = message
}

func (s *Server) setPending(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = prompt
}

func (s *Server) clearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
