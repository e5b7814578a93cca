package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	stateFormat  = "modex/module-states"
	stateVersion = 1
)

// statePayload is the structured part of the persisted state file.
type statePayload struct {
	Format       string          `json:"format"`
	Version      int             `json:"version"`
	Generated    string          `json:"generated"`
	Project      string          `json:"project"`
	ModuleStates map[string]bool `json:"module_states"`
}

// StateFile persists per-module enabled flags. Every save is a single
// complete rewrite so readers always see the last successful write.
type StateFile struct {
	path    string
	project string
}

// NewStateFile creates a state file handle. Nothing is read or written
// until Load or Save is called.
func NewStateFile(path, project string) *StateFile {
	return &StateFile{path: path, project: project}
}

// Path returns the backing file path.
func (f *StateFile) Path() string {
	return f.path
}

// Load reads the persisted enabled flags. A missing file yields an empty map.
// Comment lines (starting with '#') are ignored by the parser.
func (f *StateFile) Load() (map[string]bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]bool), nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var payload bytes.Buffer
	for _, line := range bytes.Split(data, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("#")) {
			continue
		}
		payload.Write(line)
		payload.WriteByte('\n')
	}

	var state statePayload
	if err := json.Unmarshal(payload.Bytes(), &state); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	if state.ModuleStates == nil {
		state.ModuleStates = make(map[string]bool)
	}
	return state.ModuleStates, nil
}

// Save rewrites the state file with the given flags.
func (f *StateFile) Save(states map[string]bool) error {
	payload := statePayload{
		Format:       stateFormat,
		Version:      stateVersion,
		Generated:    time.Now().UTC().Format(time.RFC3339),
		Project:      f.project,
		ModuleStates: states,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Module enabled/disabled state for %s.\n", f.project)
	buf.WriteString("# Generated file; edit through the module registry.\n")
	buf.Write(data)
	buf.WriteByte('\n')

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(f.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}
