package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"depot/internal/manifest"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new package project",
	Long: `Creates a new depot.json manifest file and basic directory structure.

This command will create:
- depot.json (manifest file)
- src/ directory (for package files)
- README.md (basic documentation)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	// Check if manifest already exists
	if _, err := os.Stat(manifest.FileName); err == nil {
		fmt.Printf("%s already exists\n", manifest.FileName)
		return nil
	}

	sample := manifest.CreateSample()

	if err := sample.Save(manifest.FileName); err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}

	if err := os.MkdirAll("src", 0o755); err != nil {
		return fmt.Errorf("failed to create src directory: %w", err)
	}

	readme := fmt.Sprintf(`# %s

%s

## Publishing

1. Edit depot.json with your package details
2. Run `+"`depot pack`"+` to build and inspect the archive
3. Run `+"`depot publish`"+` to publish to the registry
`,
		sample.Name,
		sample.Description,
	)

	if err := os.WriteFile("README.md", []byte(readme), 0o644); err != nil {
		return fmt.Errorf("failed to create README: %w", err)
	}

	fmt.Printf("✅ Initialized new package project\n")
	fmt.Printf("📁 Created files:\n")
	fmt.Printf("   - %s (manifest)\n", manifest.FileName)
	fmt.Printf("   - src/ (package files)\n")
	fmt.Printf("   - README.md (documentation)\n")
	fmt.Printf("\n🚀 Next steps:\n")
	fmt.Printf("   1. Edit %s with your package details\n", manifest.FileName)
	fmt.Printf("   2. Add files under src/\n")
	fmt.Printf("   3. Run 'depot pack' to build the archive\n")
	fmt.Printf("   4. Run 'depot publish' to publish to the registry\n")

	return nil
}
