package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"depot/internal/config"
)

var (
	verbose          bool
	registryOverride string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "depot",
	Short: "Depot - content-addressed package registry client",
	Long: `Depot is a package manager for publishing and installing versioned
file packages. Archives are addressed by their content digest, so an
install always materializes exactly the bytes that were published.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env file if it exists
		config.LoadEnvFile(".env")

		if verbose {
			fmt.Printf("depot version: 1.0.0\n")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&registryOverride, "registry", "", "registry name to use (overrides current)")

	// Add subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(authCmd)
}

// Helper function to handle errors
func checkErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
