package gitsync

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// OpenInClient launches an external git GUI client on path, best effort. The
// argument convention is selected by recognizing the client executable's
// name. Returns false without failing on a missing executable, missing path,
// or launch error.
func (e *Engine) OpenInClient(clientPath, path string) bool {
	if clientPath == "" || path == "" {
		return false
	}
	if !exists(clientPath) || !exists(path) {
		e.log.Debug().Str("client", clientPath).Str("path", path).
			Msg("client or target path missing")
		return false
	}

	name := strings.ToLower(strings.TrimSuffix(filepath.Base(clientPath), filepath.Ext(clientPath)))
	var args []string
	switch {
	case strings.Contains(name, "gitkraken"):
		args = []string{"-p", path}
	case strings.Contains(name, "sourcetree"):
		args = []string{path}
	case strings.Contains(name, "smerge"), strings.Contains(name, "sublime_merge"):
		args = []string{path}
	case strings.Contains(name, "fork"):
		args = []string{path}
	case strings.Contains(name, "github"):
		args = []string{path}
	default:
		args = []string{path}
	}

	cmd := exec.Command(clientPath, args...)
	if err := cmd.Start(); err != nil {
		e.log.Debug().Str("client", clientPath).Err(err).Msg("launching client failed")
		return false
	}
	// Reap the GUI process in the background; its exit status is irrelevant.
	go cmd.Wait()
	return true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
