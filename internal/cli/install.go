package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"depot/internal/install"
	"depot/internal/lockfile"
	"depot/internal/manifest"
	"depot/internal/resolve"
)

// installTarget is where resolved packages are materialized.
const installTarget = "depot_modules"

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the manifest's dependencies",
	Long: `Resolves the dependencies declared in depot.json against the active
registry, downloads the selected archives, verifies each against its
content digest, and unpacks them under depot_modules/.

The outcome is pinned in depot.lock.json so a later install on another
machine materializes identical bytes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd)
	},
}

func runInstall(cmd *cobra.Command) error {
	m, err := manifest.Load(manifest.FileName)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	if len(m.Dependencies) == 0 {
		fmt.Printf("No dependencies declared in %s\n", manifest.FileName)
		return nil
	}

	reqs := make([]resolve.Requirement, 0, len(m.Dependencies))
	for name, constraint := range m.Dependencies {
		reqs = append(reqs, resolve.Requirement{Name: name, Constraint: constraint})
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Name < reqs[j].Name })

	reg, c, err := newRegistryClient()
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("🔍 Resolving %d requirement(s)\n", len(reqs))
	}

	installer := &install.Installer{
		Source:  c,
		Fetcher: c,
		Target:  installTarget,
	}

	result, err := installer.Install(cmd.Context(), reqs)
	if err != nil {
		return fmt.Errorf("install failed: %w", err)
	}

	lock := lockfile.New()
	for _, p := range result.Installed {
		lock.Add(lockfile.Locked{
			Name:     p.Name,
			Version:  p.Version,
			Digest:   p.Digest.String(),
			Registry: reg.URL,
		})
		fmt.Printf("📦 %s@%s (%d files)\n", p.Name, p.Version, p.Files)
	}

	if err := lock.Save(lockfile.FileName); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}

	fmt.Printf("✅ Installed %d package(s) into %s/\n", len(result.Installed), installTarget)
	fmt.Printf("🔒 Pinned in %s\n", lockfile.FileName)

	return nil
}
