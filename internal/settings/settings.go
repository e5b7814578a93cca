// Package settings stores workstation configuration consumed by the git
// integration workflow.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Filename is the default settings file name at a project root.
const Filename = "modex.yaml"

const (
	keyGitClientPath = "git_client_path"
	keySyncFolder    = "sync_folder"
	keyProjectName   = "project_name"
)

// Settings wraps the backing configuration file.
type Settings struct {
	v    *viper.Viper
	path string
}

// Load reads settings from path. A missing file yields defaults.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(keyProjectName, "untitled")

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading settings %s: %w", path, err)
		}
	}
	return &Settings{v: v, path: path}, nil
}

// GitClientPath returns the configured git GUI client executable.
func (s *Settings) GitClientPath() string {
	return s.v.GetString(keyGitClientPath)
}

// SetGitClientPath updates the git client path in memory.
func (s *Settings) SetGitClientPath(path string) {
	s.v.Set(keyGitClientPath, path)
}

// SyncFolder returns the destination root for synchronized module repos.
func (s *Settings) SyncFolder() string {
	return s.v.GetString(keySyncFolder)
}

// SetSyncFolder updates the sync folder in memory.
func (s *Settings) SetSyncFolder(path string) {
	s.v.Set(keySyncFolder, path)
}

// ProjectName returns the project identifier recorded in persisted state.
func (s *Settings) ProjectName() string {
	return s.v.GetString(keyProjectName)
}

// SetProjectName updates the project name in memory.
func (s *Settings) SetProjectName(name string) {
	s.v.Set(keyProjectName, name)
}

// Save rewrites the settings file.
func (s *Settings) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("writing settings %s: %w", s.path, err)
	}
	return nil
}
