// Package install materializes resolved packages into an install
// target: resolve, fetch each artifact, verify its content address,
// then unpack the file tree.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"depot/internal/archive"
	"depot/internal/blob"
	"depot/internal/digest"
	"depot/internal/resolve"
)

// Fetcher retrieves artifact bytes by content digest. The local
// store and the remote registry client both satisfy it.
type Fetcher interface {
	Fetch(ctx context.Context, d digest.Digest) ([]byte, error)
}

// IntegrityError reports fetched bytes whose digest does not match
// the version's recorded digest. It is fatal for the install and
// never papered over by a silent retry.
type IntegrityError struct {
	Name    string
	Version string
	Want    digest.Digest
	Got     digest.Digest
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity failure for %s@%s: want %s, fetched bytes hash to %s",
		e.Name, e.Version, e.Want, e.Got)
}

// FetchError reports a transient transfer fault (timeout,
// cancellation, network error). Safe to retry with backoff at the
// caller's discretion, and distinct from a resolution failure.
type FetchError struct {
	Name    string
	Version string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s@%s: %v", e.Name, e.Version, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// InstalledPackage describes one materialized package.
type InstalledPackage struct {
	Name    string
	Version string
	Digest  digest.Digest
	Dir     string
	Files   int
}

// Result is the outcome of a successful install.
type Result struct {
	Resolution resolve.Resolution
	Installed  []InstalledPackage
}

// Installer runs the install pipeline against pluggable
// collaborators, so tests can wire fixture sources and stores.
type Installer struct {
	Source  resolve.Source
	Fetcher Fetcher
	Target  string
}

// Install resolves the requirements, then fetches, verifies, and
// materializes every selection. An UnsatisfiableError surfaces
// verbatim and is never retried here.
func (in *Installer) Install(ctx context.Context, reqs []resolve.Requirement) (*Result, error) {
	resolution, err := resolve.Resolve(ctx, in.Source, reqs)
	if err != nil {
		return nil, err
	}

	result := &Result{Resolution: resolution}

	// Deterministic install order: selection names sorted.
	names := make([]string, 0, len(resolution))
	for name := range resolution {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sel := resolution[name]

		pkg, err := in.materialize(ctx, sel)
		if err != nil {
			return nil, err
		}
		result.Installed = append(result.Installed, *pkg)
	}

	return result, nil
}

func (in *Installer) materialize(ctx context.Context, sel resolve.Selection) (*InstalledPackage, error) {
	b, err := in.Fetcher.Fetch(ctx, sel.Digest)
	if err != nil {
		if errors.Is(err, blob.ErrCorrupt) {
			return nil, &IntegrityError{Name: sel.Name, Version: sel.Version, Want: sel.Digest}
		}
		// Timeouts and cancellations are recoverable fetch faults,
		// not resolution failures.
		return nil, &FetchError{Name: sel.Name, Version: sel.Version, Err: err}
	}

	if got := digest.Sum(b); got != sel.Digest {
		return nil, &IntegrityError{Name: sel.Name, Version: sel.Version, Want: sel.Digest, Got: got}
	}

	_, tree, err := archive.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decoding %s@%s: %w", sel.Name, sel.Version, err)
	}

	// Keyed by name and version so two versions of one package
	// never collide in the target.
	dir := filepath.Join(in.Target, fmt.Sprintf("%s-%s", sel.Name, sel.Version))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating install dir for %s: %w", sel.Name, err)
	}

	for path, content := range tree {
		// Entry paths were validated at decode; joining against the
		// package dir is still the only materialization root.
		dest := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
		if err := os.WriteFile(dest, content, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
	}

	return &InstalledPackage{
		Name:    sel.Name,
		Version: sel.Version,
		Digest:  sel.Digest,
		Dir:     dir,
		Files:   len(tree),
	}, nil
}

// StoreFetcher adapts a local blob store to the Fetcher interface.
type StoreFetcher struct {
	Store blob.Store
}

func (f *StoreFetcher) Fetch(ctx context.Context, d digest.Digest) ([]byte, error) {
	return f.Store.Get(ctx, d)
}
