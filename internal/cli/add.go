package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"depot/internal/manifest"
	"depot/internal/version"
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add <package[@constraint]>",
	Short: "Add a dependency to the manifest",
	Long: `Adds a dependency to the current project's depot.json.

The constraint is a semver range expression. When omitted, any version
is accepted.

Examples:
  depot add web-helpers
  depot add web-helpers@^1.2.0
  depot add parser@">=2.0.0, <3.0.0"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdd(args[0])
	},
}

func runAdd(spec string) error {
	name, constraint, err := parseDependencySpec(spec)
	if err != nil {
		return err
	}

	m, err := manifest.Load(manifest.FileName)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	if m.Dependencies == nil {
		m.Dependencies = make(map[string]string)
	}
	previous, existed := m.Dependencies[name]
	m.Dependencies[name] = constraint

	if err := m.Save(manifest.FileName); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}

	if existed {
		fmt.Printf("✅ Updated dependency %s: %s -> %s\n", name, previous, constraint)
	} else {
		fmt.Printf("✅ Added dependency %s@%s\n", name, constraint)
	}
	fmt.Printf("💡 Run 'depot install' to materialize dependencies\n")

	return nil
}

// parseDependencySpec splits "name@constraint" and validates both
// halves. A bare name means any version.
func parseDependencySpec(spec string) (string, string, error) {
	name, constraint, found := strings.Cut(spec, "@")
	if !found {
		constraint = "*"
	}

	if !manifest.ValidName(name) {
		return "", "", fmt.Errorf("invalid package name %q", name)
	}
	if constraint == "" {
		return "", "", fmt.Errorf("empty version constraint in %q", spec)
	}
	if _, err := version.ParseConstraint(constraint); err != nil {
		return "", "", fmt.Errorf("invalid constraint %q: %w", constraint, err)
	}

	return name, constraint, nil
}
