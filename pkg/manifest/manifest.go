// Package manifest parses and validates module descriptor files.
package manifest

import (
	"encoding/json"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/systemshift/modex/pkg/result"
)

// Filename is the fixed descriptor filename inside each module directory.
const Filename = "module.json"

// DefaultEngineVersions is used when a descriptor omits engine_versions.
var DefaultEngineVersions = []string{"4.2", "4.3"}

var idPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Descriptor holds the identity and metadata of one module. Immutable once
// loaded; superseded wholesale on rescan. Unknown JSON fields are ignored.
type Descriptor struct {
	ID             string   `json:"id" validate:"required,module_id"`
	Name           string   `json:"name" validate:"required"`
	Version        string   `json:"version" validate:"required"`
	Description    string   `json:"description" validate:"required"`
	Author         string   `json:"author"`
	EntryPoint     string   `json:"entry_point"`
	Dependencies   []string `json:"dependencies"`
	EngineVersions []string `json:"engine_versions"`
	Repository     string   `json:"repository"`
	ConfigSchema   string   `json:"config_schema"`
}

// Store loads descriptors from disk.
type Store struct {
	validate *validator.Validate
}

// NewStore creates a descriptor store.
func NewStore() *Store {
	v := validator.New()
	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("module_id", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	return &Store{validate: v}
}

// Load reads and validates the descriptor at path. It has no side effects
// beyond reading the file.
func (s *Store) Load(path string) result.Result[Descriptor] {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result.Errf[Descriptor](result.ErrNotFound, "descriptor %s", path)
		}
		return result.Errf[Descriptor](result.ErrIO, "reading descriptor %s: %v", path, err)
	}
	return s.Parse(data)
}

// Parse validates raw descriptor content and applies defaults.
func (s *Store) Parse(data []byte) result.Result[Descriptor] {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return result.Errf[Descriptor](result.ErrValidation, "parsing descriptor: %v", err)
	}

	if err := s.validate.Struct(&d); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			field := errs[0]
			if field.Tag() == "module_id" {
				return result.Errf[Descriptor](result.ErrValidation,
					"id %q must match [a-z0-9_-]+", d.ID)
			}
			return result.Errf[Descriptor](result.ErrValidation,
				"descriptor field %s is required", field.Field())
		}
		return result.Errf[Descriptor](result.ErrValidation, "descriptor: %v", err)
	}

	if len(d.EngineVersions) == 0 {
		d.EngineVersions = append([]string(nil), DefaultEngineVersions...)
	}
	if d.Dependencies == nil {
		d.Dependencies = []string{}
	}
	return result.Ok(d)
}
