// Package archive implements the package archive codec: a gzip
// compressed tarball carrying a depot.json manifest at its root plus
// the package file tree. Validation is pure and runs to completion
// before any store or index write.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"depot/internal/manifest"
)

// Archive limits. Decompression is capped to the same bound as the
// compressed input so crafted archives cannot expand unboundedly.
const (
	MaxArchiveBytes = 20 << 20 // compressed upload size
	MaxFileBytes    = 20 << 20 // single decompressed entry
	MaxEntries      = 10000
)

// ValidationError kinds. The set is closed; the API layer maps any
// kind to a 422 response.
const (
	KindMalformed       = "malformed"        // bad gzip or tar structure
	KindMissingManifest = "missing-manifest" // no depot.json at archive root
	KindManifest        = "manifest"         // manifest failed schema or field validation
	KindPath            = "path"             // traversal, absolute, or unclean entry path
	KindDuplicatePath   = "duplicate-path"
	KindEntryType       = "entry-type" // symlink, device, fifo
	KindTooLarge        = "too-large"
	KindTooManyEntries  = "too-many-entries"
	KindChecksum        = "checksum" // client-supplied checksum mismatch
)

// ValidationError describes a structurally invalid archive. It is the
// caller's fault and never retried.
type ValidationError struct {
	Kind   string
	Path   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid archive (%s): %s: %s", e.Kind, e.Path, e.Detail)
	}
	return fmt.Sprintf("invalid archive (%s): %s", e.Kind, e.Detail)
}

func invalid(kind, entryPath, detail string) *ValidationError {
	return &ValidationError{Kind: kind, Path: entryPath, Detail: detail}
}

// FileTree maps clean slash-separated relative paths to file bytes.
// The manifest entry itself is not part of the tree.
type FileTree map[string][]byte

// Decode parses and validates an archive, returning its manifest and
// file tree. Any failure is a *ValidationError; nothing about the
// archive is trusted until Decode succeeds.
func Decode(b []byte) (*manifest.Manifest, FileTree, error) {
	if len(b) > MaxArchiveBytes {
		return nil, nil, invalid(KindTooLarge, "", fmt.Sprintf("archive is %d bytes, limit %d", len(b), MaxArchiveBytes))
	}

	gz, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, nil, invalid(KindMalformed, "", fmt.Sprintf("bad gzip container: %v", err))
	}
	defer gz.Close()

	// Cap total decompressed output against decompression bombs.
	limited := io.LimitReader(gz, MaxArchiveBytes+1)
	var decompressed int64

	tr := tar.NewReader(limited)
	tree := make(FileTree)
	var manifestBytes []byte
	entries := 0

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, invalid(KindMalformed, "", fmt.Sprintf("bad tar structure: %v", err))
		}

		entries++
		if entries > MaxEntries {
			return nil, nil, invalid(KindTooManyEntries, "", fmt.Sprintf("more than %d entries", MaxEntries))
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			// Directories are implied by file paths.
			continue
		case tar.TypeReg:
		default:
			return nil, nil, invalid(KindEntryType, hdr.Name, fmt.Sprintf("unsupported entry type %q", hdr.Typeflag))
		}

		clean, verr := validateEntryPath(hdr.Name)
		if verr != nil {
			return nil, nil, verr
		}

		if hdr.Size > MaxFileBytes {
			return nil, nil, invalid(KindTooLarge, clean, fmt.Sprintf("entry is %d bytes, limit %d", hdr.Size, MaxFileBytes))
		}

		content, err := io.ReadAll(io.LimitReader(tr, MaxFileBytes+1))
		if err != nil {
			return nil, nil, invalid(KindMalformed, clean, fmt.Sprintf("failed to read entry: %v", err))
		}
		if int64(len(content)) > MaxFileBytes {
			return nil, nil, invalid(KindTooLarge, clean, "entry exceeds decompressed size limit")
		}

		decompressed += int64(len(content))
		if decompressed > MaxArchiveBytes {
			return nil, nil, invalid(KindTooLarge, "", "decompressed contents exceed archive size limit")
		}

		if clean == manifest.FileName {
			if manifestBytes != nil {
				return nil, nil, invalid(KindDuplicatePath, clean, "manifest appears twice")
			}
			manifestBytes = content
			continue
		}

		if _, dup := tree[clean]; dup {
			return nil, nil, invalid(KindDuplicatePath, clean, "entry path appears twice")
		}
		tree[clean] = content
	}

	if manifestBytes == nil {
		return nil, nil, invalid(KindMissingManifest, "", manifest.FileName+" not found at archive root")
	}

	m, err := manifest.Decode(manifestBytes)
	if err != nil {
		return nil, nil, invalid(KindManifest, manifest.FileName, err.Error())
	}

	return m, tree, nil
}

// validateEntryPath rejects anything that could escape the archive
// root when materialized and returns the canonical slash path.
func validateEntryPath(name string) (string, *ValidationError) {
	if name == "" {
		return "", invalid(KindPath, name, "empty entry path")
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return "", invalid(KindPath, name, "absolute entry path")
	}
	if strings.Contains(name, "\\") {
		return "", invalid(KindPath, name, "backslash in entry path")
	}
	if len(name) > 1 && name[1] == ':' {
		return "", invalid(KindPath, name, "drive-letter entry path")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", invalid(KindPath, name, "control character in entry path")
		}
	}

	clean := path.Clean(name)
	if clean != name && clean+"/" != name {
		return "", invalid(KindPath, name, "entry path is not clean")
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", invalid(KindPath, name, "entry path escapes archive root")
	}
	if clean == "." {
		return "", invalid(KindPath, name, "empty entry path")
	}

	return clean, nil
}

// Encode produces archive bytes for a manifest and file tree. Output
// is deterministic: sorted entry order, fixed modes, zero timestamps.
// Equal inputs produce equal bytes and therefore equal digests, and
// Decode(Encode(m, f)) returns (m, f).
func Encode(m *manifest.Manifest, tree FileTree) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	manifestBytes, err := m.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	paths := make([]string, 0, len(tree))
	for p := range tree {
		if p == manifest.FileName {
			return nil, fmt.Errorf("file tree must not contain %s", manifest.FileName)
		}
		if _, verr := validateEntryPath(p); verr != nil {
			return nil, verr
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	writeEntry := func(name string, content []byte) error {
		hdr := &tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", name, err)
		}
		if _, err := tw.Write(content); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return nil
	}

	if err := writeEntry(manifest.FileName, manifestBytes); err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := writeEntry(p, tree[p]); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize gzip: %w", err)
	}

	return buf.Bytes(), nil
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
