package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"depot/internal/version"
)

// FileName is the manifest file name inside an archive and at the
// root of a project.
const FileName = "depot.json"

var (
	ErrMissingName       = errors.New("manifest name is required")
	ErrInvalidName       = errors.New("invalid package name")
	ErrMissingVersion    = errors.New("manifest version is required")
	ErrInvalidVersion    = errors.New("invalid version")
	ErrInvalidDependency = errors.New("invalid dependency")
)

// nameRegex matches valid package names: lowercase, starting with a
// letter or digit, then letters, digits, hyphen or underscore.
var nameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// MaxNameLen bounds package name length.
const MaxNameLen = 64

// Manifest is the structured metadata embedded in a package archive.
// Unknown top-level JSON fields are preserved in Extra across a
// decode/encode cycle so manifests written by newer clients survive
// untouched.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description,omitempty"`
	License      string            `json:"license,omitempty"`
	Authors      []string          `json:"authors,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Files        []string          `json:"files,omitempty"`

	// Extra holds unknown top-level fields, keyed by field name.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownFields are the manifest fields handled by the struct itself;
// everything else lands in Extra.
var knownFields = map[string]bool{
	"name":         true,
	"version":      true,
	"description":  true,
	"license":      true,
	"authors":      true,
	"dependencies": true,
	"files":        true,
}

// manifestSchema is the eager shape check applied before struct-level
// validation, so wrong types (numeric name, array dependencies) are
// caught with a clear error rather than a decode failure.
const manifestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["name", "version"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"version": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"license": {"type": "string"},
		"authors": {"type": "array", "items": {"type": "string"}},
		"dependencies": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"files": {"type": "array", "items": {"type": "string"}}
	}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

// Schema returns the compiled manifest JSON schema.
func Schema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource("depot://manifest.schema.json", strings.NewReader(manifestSchema)); err != nil {
			panic(fmt.Sprintf("manifest schema resource: %v", err))
		}
		schema = c.MustCompile("depot://manifest.schema.json")
	})
	return schema
}

// Decode parses manifest JSON, running the schema check first and
// then struct-level validation.
func Decode(data []byte) (*Manifest, error) {
	var shape interface{}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	if err := Schema().Validate(shape); err != nil {
		return nil, fmt.Errorf("manifest schema validation failed: %w", err)
	}

	var m Manifest
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// UnmarshalJSON decodes the known fields and stashes everything else
// in Extra.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	type plain Manifest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse manifest fields: %w", err)
	}
	*m = Manifest(p)

	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}

	return nil
}

// MarshalJSON re-emits the known fields plus any preserved unknown
// fields. Known fields win on a key collision.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type plain Manifest
	base, err := json.Marshal((*plain)(m))
	if err != nil {
		return nil, err
	}

	if len(m.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}

	return json.Marshal(merged)
}

// Validate checks name, version and dependency constraints against
// the registry's rules.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if len(m.Name) > MaxNameLen {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, m.Name, MaxNameLen)
	}
	if !nameRegex.MatchString(m.Name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidName, m.Name, nameRegex.String())
	}

	if m.Version == "" {
		return ErrMissingVersion
	}
	if _, err := version.Parse(m.Version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}

	for dep, constraint := range m.Dependencies {
		if !nameRegex.MatchString(dep) || len(dep) > MaxNameLen {
			return fmt.Errorf("%w: bad package name %q", ErrInvalidDependency, dep)
		}
		if _, err := version.ParseConstraint(constraint); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidDependency, dep, err)
		}
	}

	return nil
}

// Sanitize strips markup from free-text metadata before it reaches
// the index.
func (m *Manifest) Sanitize() {
	policy := bluemonday.StrictPolicy()
	m.Description = policy.Sanitize(m.Description)
	m.License = policy.Sanitize(m.License)
	for i, a := range m.Authors {
		m.Authors[i] = policy.Sanitize(a)
	}
}

// Load reads and validates a manifest from a file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Decode(data)
}

// Save writes the manifest to a file as indented JSON.
func (m *Manifest) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}

	data, err := m.encodeIndented()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func (m *Manifest) encodeIndented() ([]byte, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// ValidName reports whether s is a legal package name.
func ValidName(s string) bool {
	return s != "" && len(s) <= MaxNameLen && nameRegex.MatchString(s)
}

// CreateSample returns a starter manifest for depot init.
func CreateSample() *Manifest {
	return &Manifest{
		Name:         "example-package",
		Version:      "0.1.0",
		Description:  "An example package",
		License:      "MIT",
		Dependencies: map[string]string{},
		Files:        []string{"src/**"},
	}
}
