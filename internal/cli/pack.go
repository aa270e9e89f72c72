package cli

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/spf13/cobra"

	"depot/internal/archive"
	"depot/internal/digest"
	"depot/internal/lockfile"
	"depot/internal/manifest"
)

var packOutput string

// packCmd represents the pack command
var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build the package archive from the manifest",
	Long: `Builds the distributable archive for the current project.

Files are selected by the manifest's "files" glob patterns (doublestar
syntax, e.g. "src/**"). Anything matched by the project's .gitignore is
excluded. The archive is deterministic: packing the same tree twice
produces byte-identical output and therefore the same digest.

Examples:
  depot pack
  depot pack --output my-package.tgz`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPack()
	},
}

func runPack() error {
	m, data, tree, err := buildPackage(".")
	if err != nil {
		return err
	}

	out := packOutput
	if out == "" {
		out = fmt.Sprintf("%s-%s.tgz", m.Name, m.Version)
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	fmt.Printf("✅ Packed %s@%s\n", m.Name, m.Version)
	fmt.Printf("📦 Archive: %s (%d files, %d bytes)\n", out, len(tree), len(data))
	fmt.Printf("🔑 Digest: %s\n", digest.Sum(data))

	return nil
}

// buildPackage loads the manifest in dir, collects the files its
// patterns select, and encodes the archive. Returns the manifest, the
// archive bytes, and the packed tree.
func buildPackage(dir string) (*manifest.Manifest, []byte, archive.FileTree, error) {
	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if len(m.Files) == 0 {
		return nil, nil, nil, fmt.Errorf("manifest has no \"files\" patterns; nothing to pack")
	}

	tree, err := collectFiles(dir, m.Files)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(tree) == 0 {
		return nil, nil, nil, fmt.Errorf("no files matched the manifest patterns %v", m.Files)
	}

	data, err := archive.Encode(m, tree)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode archive: %w", err)
	}

	return m, data, tree, nil
}

// collectFiles walks dir and returns every regular file matched by one
// of the doublestar patterns, minus gitignored paths. Keys are clean
// slash-separated paths relative to dir.
func collectFiles(dir string, patterns []string) (archive.FileTree, error) {
	matcher, err := loadGitignore(dir)
	if err != nil {
		return nil, err
	}

	tree := make(archive.FileTree)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			// Never descend into VCS metadata or installed packages.
			if d.Name() == ".git" || d.Name() == "depot_modules" {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.Match(strings.Split(rel, "/"), true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		// The manifest and lockfile travel outside the tree.
		if rel == manifest.FileName || rel == lockfile.FileName {
			return nil
		}
		if matcher != nil && matcher.Match(strings.Split(rel, "/"), false) {
			return nil
		}

		matched := false
		for _, pattern := range patterns {
			ok, err := doublestar.Match(pattern, rel)
			if err != nil {
				return fmt.Errorf("bad files pattern %q: %w", pattern, err)
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}

		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree[rel] = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect files: %w", err)
	}

	return tree, nil
}

// loadGitignore parses dir/.gitignore into a matcher. A missing file
// means nothing is excluded.
func loadGitignore(dir string) (gitignore.Matcher, error) {
	f, err := os.Open(filepath.Join(dir, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read .gitignore: %w", err)
	}
	defer f.Close()

	var ps []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(line, nil))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read .gitignore: %w", err)
	}
	if len(ps) == 0 {
		return nil, nil
	}

	return gitignore.NewMatcher(ps), nil
}

func init() {
	packCmd.Flags().StringVarP(&packOutput, "output", "o", "", "output archive path (default <name>-<version>.tgz)")
}
