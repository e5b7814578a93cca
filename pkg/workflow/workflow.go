// Package workflow sequences settings validation, user prompts, and a git
// synchronization into one coherent operation per module, as a finite-state
// machine driven by collaborator callbacks.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/systemshift/modex/pkg/registry"
	"github.com/systemshift/modex/pkg/result"
)

// State is the workflow's position in the synchronization sequence.
type State string

const (
	StateIdle             State = "idle"
	StateCheckingSettings State = "checking_settings"
	StatePromptingClient  State = "prompting_client"
	StatePromptingFolder  State = "prompting_folder"
	StatePromptingRepoURL State = "prompting_repo_url"
	StateSyncing          State = "syncing"
	StateOpeningClient    State = "opening_client"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// terminal reports whether the state ends a workflow.
func terminal(s State) bool {
	return s == StateCompleted || s == StateFailed
}

// Context tracks one in-flight synchronization. Exactly one context is
// active at a time; starting a new workflow discards a non-terminal one.
type Context struct {
	ID       string
	State    State
	ModuleID string
	RepoURL  string
	DestPath string
	Message  string
}

// Events is the surface consumed by the UI collaborator. Need* callbacks
// request missing configuration; Completed reports the terminal outcome.
type Events interface {
	NeedGitClient()
	NeedModuleFolder()
	NeedRepositoryURL(moduleID string)
	Completed(success bool, message string)
}

// NopEvents discards all workflow events.
type NopEvents struct{}

func (NopEvents) NeedGitClient()           {}
func (NopEvents) NeedModuleFolder()        {}
func (NopEvents) NeedRepositoryURL(string) {}
func (NopEvents) Completed(bool, string)   {}

// Settings supplies the workstation configuration the workflow validates.
type Settings interface {
	GitClientPath() string
	SyncFolder() string
}

// ModuleSource resolves module metadata; *registry.Registry satisfies it.
type ModuleSource interface {
	Record(id string) (*registry.Record, bool)
}

// Syncer performs the repository synchronization; *gitsync.Engine satisfies
// it. Calls block until the underlying subprocesses exit.
type Syncer interface {
	SyncToRepository(srcPath, destPath, repoURL string) result.Result[result.Unit]
	OpenInClient(clientPath, path string) bool
}

// Workflow is the finite-state engine. One workflow instance serves one
// session; no other workflow may run concurrently against it.
type Workflow struct {
	modules  ModuleSource
	syncer   Syncer
	settings Settings
	events   Events
	log      zerolog.Logger

	mu  sync.Mutex
	ctx *Context
}

// New creates a workflow engine. A nil events sink is replaced by NopEvents.
func New(modules ModuleSource, syncer Syncer, settings Settings, events Events, log zerolog.Logger) *Workflow {
	if events == nil {
		events = NopEvents{}
	}
	return &Workflow{
		modules:  modules,
		syncer:   syncer,
		settings: settings,
		events:   events,
		log:      log.With().Str("component", "workflow").Logger(),
	}
}

// Start begins synchronization for a module. A non-terminal prior context is
// silently discarded: last start wins, no queueing.
func (w *Workflow) Start(moduleID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx != nil && !terminal(w.ctx.State) {
		w.log.Debug().Str("module", w.ctx.ModuleID).Msg("discarding active workflow context")
	}
	w.ctx = &Context{
		ID:       uuid.NewString(),
		State:    StateCheckingSettings,
		ModuleID: moduleID,
	}

	rec, ok := w.modules.Record(moduleID)
	if !ok {
		w.fail(fmt.Sprintf("unknown module: %s", moduleID))
		return
	}
	w.ctx.RepoURL = rec.Descriptor.Repository
	w.checkClient()
}

// ClientConfigured resumes the workflow after the git client path was
// supplied. Ignored outside the PromptingClient state.
func (w *Workflow) ClientConfigured() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.inState(StatePromptingClient) {
		return
	}
	w.ctx.State = StateCheckingSettings
	w.checkClient()
}

// FolderConfigured resumes the workflow after the sync folder was supplied.
// Ignored outside the PromptingFolder state.
func (w *Workflow) FolderConfigured() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.inState(StatePromptingFolder) {
		return
	}
	w.ctx.State = StateCheckingSettings
	w.checkFolder()
}

// RepositoryURLProvided resumes the workflow with the supplied repository
// URL. Ignored outside the PromptingRepoURL state.
func (w *Workflow) RepositoryURLProvided(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.inState(StatePromptingRepoURL) {
		return
	}
	w.ctx.RepoURL = url
	w.sync()
}

// Cancel fails the workflow from any non-terminal state.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil || terminal(w.ctx.State) {
		return
	}
	w.fail("synchronization cancelled")
}

// Active reports whether moduleID owns the live, non-terminal context.
func (w *Workflow) Active(moduleID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx != nil && w.ctx.ModuleID == moduleID && !terminal(w.ctx.State)
}

// Current returns a copy of the active context. ok is false when no workflow
// has been started.
func (w *Workflow) Current() (Context, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return Context{}, false
	}
	return *w.ctx, true
}

// State returns the current workflow state, Idle when none is active.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return StateIdle
	}
	return w.ctx.State
}

func (w *Workflow) inState(s State) bool {
	return w.ctx != nil && w.ctx.State == s
}

// checkClient validates the configured git client path, prompting when it is
// unset or invalid, then falls through to the folder check.
func (w *Workflow) checkClient() {
	client := w.settings.GitClientPath()
	if client == "" || !fileExists(client) {
		w.ctx.State = StatePromptingClient
		w.events.NeedGitClient()
		return
	}
	w.checkFolder()
}

func (w *Workflow) checkFolder() {
	folder := w.settings.SyncFolder()
	if folder == "" || !dirExists(folder) {
		w.ctx.State = StatePromptingFolder
		w.events.NeedModuleFolder()
		return
	}
	w.checkRepoURL()
}

func (w *Workflow) checkRepoURL() {
	if w.ctx.RepoURL == "" {
		w.ctx.State = StatePromptingRepoURL
		w.events.NeedRepositoryURL(w.ctx.ModuleID)
		return
	}
	w.sync()
}

// sync runs the blocking synchronization step and drives the workflow to a
// terminal state.
func (w *Workflow) sync() {
	w.ctx.State = StateSyncing

	rec, ok := w.modules.Record(w.ctx.ModuleID)
	if !ok {
		w.fail(fmt.Sprintf("unknown module: %s", w.ctx.ModuleID))
		return
	}
	w.ctx.DestPath = filepath.Join(w.settings.SyncFolder(), w.ctx.ModuleID)

	res := w.syncer.SyncToRepository(rec.Dir, w.ctx.DestPath, w.ctx.RepoURL)
	if !res.OK() {
		w.fail(res.Message())
		return
	}

	w.ctx.State = StateOpeningClient
	if !w.syncer.OpenInClient(w.settings.GitClientPath(), w.ctx.DestPath) {
		w.log.Debug().Str("module", w.ctx.ModuleID).Msg("could not open git client")
	}
	w.complete(fmt.Sprintf("synchronized %s to %s", w.ctx.ModuleID, w.ctx.DestPath))
}

func (w *Workflow) fail(message string) {
	w.ctx.State = StateFailed
	w.ctx.Message = message
	w.log.Warn().Str("module", w.ctx.ModuleID).Msg(message)
	w.events.Completed(false, message)
}

func (w *Workflow) complete(message string) {
	w.ctx.State = StateCompleted
	w.ctx.Message = message
	w.log.Info().Str("module", w.ctx.ModuleID).Msg(message)
	w.events.Completed(true, message)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
