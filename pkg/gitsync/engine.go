// Package gitsync performs mirrored directory synchronization into
// version-controlled destinations and wraps external git commands as
// subprocess calls returning Results. It is independent of the module
// registry.
package gitsync

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/systemshift/modex/pkg/result"
)

// GitDir is the VCS metadata directory excluded from mirror syncs.
const GitDir = ".git"

// DefaultSkipExtensions are transient build-metadata files never copied into
// the destination.
var DefaultSkipExtensions = []string{".import", ".tmp"}

// Runner executes a VCS command in a working directory and returns its
// combined output.
type Runner interface {
	Run(dir string, args ...string) (string, error)
}

// execRunner invokes the real git binary.
type execRunner struct {
	gitPath string
}

func (r *execRunner) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command(r.gitPath, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Engine wraps git subprocess invocations and the mirror-sync algorithm.
type Engine struct {
	runner      Runner
	projectRoot string
	skipExts    []string
	log         zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner replaces the git subprocess runner.
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithProjectRoot resolves project-relative destination paths against root.
func WithProjectRoot(root string) Option {
	return func(e *Engine) { e.projectRoot = root }
}

// WithSkipExtensions replaces the transient-file extension skip list.
func WithSkipExtensions(exts ...string) Option {
	return func(e *Engine) { e.skipExts = exts }
}

// New creates an engine that shells out to the git binary found on PATH.
func New(log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		runner:   &execRunner{gitPath: "git"},
		skipExts: append([]string(nil), DefaultSkipExtensions...),
		log:      log.With().Str("component", "gitsync").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run executes git with the given arguments. Any non-zero exit is surfaced
// as a process error carrying the captured output. The call blocks until the
// external process exits; no timeout is enforced.
func (e *Engine) run(dir string, args ...string) result.Result[string] {
	out, err := e.runner.Run(dir, args...)
	if err != nil {
		return result.Errf[string](result.ErrProcess, "git %s: %v: %s",
			strings.Join(args, " "), err, strings.TrimSpace(out))
	}
	return result.Ok(out)
}

// InitRepo initializes a repository at path, stages all files, and creates
// the initial commit.
func (e *Engine) InitRepo(path string) result.Result[result.Unit] {
	if _, err := os.Stat(path); err != nil {
		return result.Errf[result.Unit](result.ErrNotFound, "init target %s", path)
	}
	for _, args := range [][]string{
		{"init"},
		{"add", "-A"},
		{"commit", "-m", "Initial commit"},
	} {
		if res := e.run(path, args...); !res.OK() {
			return result.Err[result.Unit](res.Err())
		}
	}
	return result.OkUnit()
}

// CloneRepo clones url into destPath, resolving project-relative paths to
// absolute paths first.
func (e *Engine) CloneRepo(url, destPath string) result.Result[result.Unit] {
	dest, err := e.resolvePath(destPath)
	if err != nil {
		return result.Errf[result.Unit](result.ErrIO, "resolving %s: %v", destPath, err)
	}
	if res := e.run("", "clone", url, dest); !res.OK() {
		return result.Err[result.Unit](res.Err())
	}
	return result.OkUnit()
}

// MirrorSync clears every entry under destPath except the git metadata
// directory, then recursively copies every entry from srcPath, skipping git
// metadata and transient build-metadata files at every depth. Deletions in
// srcPath therefore propagate to destPath. It aborts on the first failure
// without rollback; a partially-synced destination is a documented outcome
// of interruption.
func (e *Engine) MirrorSync(srcPath, destPath string) result.Result[result.Unit] {
	if info, err := os.Stat(srcPath); err != nil || !info.IsDir() {
		return result.Errf[result.Unit](result.ErrNotFound, "sync source %s", srcPath)
	}
	if info, err := os.Stat(destPath); err != nil || !info.IsDir() {
		return result.Errf[result.Unit](result.ErrNotFound, "sync destination %s", destPath)
	}
	if err := e.clearDestination(destPath); err != nil {
		return result.Errf[result.Unit](result.ErrIO, "clearing %s: %v", destPath, err)
	}
	if err := e.copyTree(srcPath, destPath); err != nil {
		return result.Errf[result.Unit](result.ErrIO, "copying %s: %v", srcPath, err)
	}
	return result.OkUnit()
}

// SyncToRepository mirrors srcPath into destPath, establishing the
// destination repository first when necessary: an existing destination must
// already be a git repository; a missing one is cloned from repoUrl when
// given, or initialized as a fresh repository holding exactly srcPath's
// files as the initial commit.
func (e *Engine) SyncToRepository(srcPath, destPath, repoURL string) result.Result[result.Unit] {
	dest, err := e.resolvePath(destPath)
	if err != nil {
		return result.Errf[result.Unit](result.ErrIO, "resolving %s: %v", destPath, err)
	}

	if _, err := os.Stat(dest); err == nil {
		if !e.isRepo(dest) {
			return result.Errf[result.Unit](result.ErrState,
				"destination %s exists but is not a git repository", dest)
		}
		return e.MirrorSync(srcPath, dest)
	}

	if repoURL != "" {
		if res := e.CloneRepo(repoURL, dest); !res.OK() {
			return res
		}
		return e.MirrorSync(srcPath, dest)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return result.Errf[result.Unit](result.ErrIO, "creating %s: %v", dest, err)
	}
	if res := e.MirrorSync(srcPath, dest); !res.OK() {
		return res
	}
	return e.InitRepo(dest)
}

// RemoteAdd registers a named remote on an existing repository.
func (e *Engine) RemoteAdd(path, name, url string) result.Result[result.Unit] {
	if res := e.run(path, "remote", "add", name, url); !res.OK() {
		return result.Err[result.Unit](res.Err())
	}
	return result.OkUnit()
}

// StatusPorcelain returns the machine-readable working tree status.
func (e *Engine) StatusPorcelain(path string) result.Result[string] {
	return e.run(path, "status", "--porcelain")
}

// CurrentBranch returns the checked-out branch name.
func (e *Engine) CurrentBranch(path string) result.Result[string] {
	res := e.run(path, "branch", "--show-current")
	if !res.OK() {
		return res
	}
	return result.Ok(strings.TrimSpace(res.Value()))
}

// Fetch updates remote tracking state.
func (e *Engine) Fetch(path string) result.Result[result.Unit] {
	if res := e.run(path, "fetch"); !res.OK() {
		return result.Err[result.Unit](res.Err())
	}
	return result.OkUnit()
}

// Pull integrates remote changes, allowing unrelated histories so a freshly
// attached remote can be merged into a locally initialized repository.
func (e *Engine) Pull(path string) result.Result[result.Unit] {
	if res := e.run(path, "pull", "--allow-unrelated-histories"); !res.OK() {
		return result.Err[result.Unit](res.Err())
	}
	return result.OkUnit()
}

func (e *Engine) isRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, GitDir))
	return err == nil && info.IsDir()
}

func (e *Engine) resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	if e.projectRoot != "" {
		return filepath.Join(e.projectRoot, path), nil
	}
	return filepath.Abs(path)
}
