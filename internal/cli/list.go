package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"depot/internal/lockfile"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List installed packages",
	Long:    `List the packages pinned in the current project's depot.lock.json.`,
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList()
	},
}

func runList() error {
	lock, err := lockfile.Load(lockfile.FileName)
	if err != nil {
		return fmt.Errorf("failed to load lockfile: %w", err)
	}

	if len(lock.Packages) == 0 {
		fmt.Printf("No packages installed. Use 'depot install' first.\n")
		return nil
	}

	fmt.Printf("📋 %d package(s) installed:\n\n", len(lock.Packages))
	for _, p := range lock.Packages {
		fmt.Printf("📦 %s@%s\n", p.Name, p.Version)
		fmt.Printf("   🔑 %s\n", p.Digest)
		if verbose && p.Registry != "" {
			fmt.Printf("   🌐 %s\n", p.Registry)
		}
	}

	return nil
}
