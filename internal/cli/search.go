package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimit int

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for packages in the registry",
	Long: `Search for packages in the active registry by name or description.

Examples:
  depot search web
  depot search parser --limit=10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd, args[0])
	},
}

func runSearch(cmd *cobra.Command, query string) error {
	_, c, err := newRegistryClient()
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("🔍 Searching for: %s\n", query)
	}

	results, err := c.Search(cmd.Context(), query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Printf("No packages found matching '%s'\n", query)
		return nil
	}

	fmt.Printf("📋 Found %d package(s):\n\n", len(results))
	for _, r := range results {
		fmt.Printf("📦 %s@%s\n", r.Name, r.Latest)
		if r.Description != "" {
			fmt.Printf("   %s\n", r.Description)
		}
		fmt.Printf("\n")
	}

	fmt.Printf("💡 Add one with: depot add <name>@<constraint>\n")

	return nil
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "limit number of results")
}
