package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the current package to the registry",
	Long: `Builds the archive for the current project and uploads it to the
active registry.

The upload carries a client-side checksum of the archive bytes; the
server recomputes the digest and rejects the publish if they disagree,
so a corrupted upload can never be recorded.

Requires authentication. Use 'depot auth login' first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPublish(cmd)
	},
}

func runPublish(cmd *cobra.Command) error {
	m, data, _, err := buildPackage(".")
	if err != nil {
		return err
	}

	reg, c, err := newRegistryClient()
	if err != nil {
		return err
	}
	if err := requireToken(reg); err != nil {
		return err
	}

	if verbose {
		fmt.Printf("📦 Publishing %s@%s (%d bytes)\n", m.Name, m.Version, len(data))
	}

	receipt, err := c.Publish(cmd.Context(), data, true)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	fmt.Printf("✅ Published %s@%s\n", receipt.Name, receipt.Version)
	fmt.Printf("🔑 Digest: %s\n", receipt.Digest)
	fmt.Printf("📦 Size: %d bytes\n", receipt.Size)

	return nil
}
