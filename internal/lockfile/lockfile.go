// Package lockfile reads and writes depot.lock.json, the record of
// exactly which package versions and digests an install produced.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// FileName is the lockfile's name in a project root.
const FileName = "depot.lock.json"

// FormatVersion is written into every lockfile so future format
// changes can be detected on load.
const FormatVersion = 1

// Locked pins one package to an exact version and content digest.
type Locked struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Digest   string `json:"digest"`
	Registry string `json:"registry,omitempty"`
}

// Lockfile is the on-disk depot.lock.json document. Packages are
// kept sorted by name so saves are deterministic and diffs stay
// readable.
type Lockfile struct {
	Version  int      `json:"version"`
	Packages []Locked `json:"packages"`
}

// New returns an empty lockfile at the current format version.
func New() *Lockfile {
	return &Lockfile{Version: FormatVersion}
}

// Load reads a lockfile from path. A missing file yields an empty
// lockfile, so fresh projects need no special casing.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, err
	}

	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if lf.Version > FormatVersion {
		return nil, fmt.Errorf("%s is format version %d, this build understands up to %d", path, lf.Version, FormatVersion)
	}
	if lf.Version == 0 {
		lf.Version = FormatVersion
	}

	return &lf, nil
}

// Save writes the lockfile to path with entries in name order.
func (l *Lockfile) Save(path string) error {
	sort.Slice(l.Packages, func(i, j int) bool {
		return l.Packages[i].Name < l.Packages[j].Name
	})

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	return os.WriteFile(path, data, 0o644)
}

// Add inserts a pin, replacing any existing entry for the same name.
func (l *Lockfile) Add(entry Locked) {
	for i, p := range l.Packages {
		if p.Name == entry.Name {
			l.Packages[i] = entry
			return
		}
	}
	l.Packages = append(l.Packages, entry)
}

// Remove drops the pin for name, if present.
func (l *Lockfile) Remove(name string) {
	for i, p := range l.Packages {
		if p.Name == name {
			l.Packages = append(l.Packages[:i], l.Packages[i+1:]...)
			return
		}
	}
}

// Get returns the pin for name.
func (l *Lockfile) Get(name string) (Locked, bool) {
	for _, p := range l.Packages {
		if p.Name == name {
			return p, true
		}
	}
	return Locked{}, false
}
