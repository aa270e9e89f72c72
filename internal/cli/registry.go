package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"depot/internal/config"
)

// registryCmd represents the registry command group
var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage registries",
	Long: `Manage registry configurations for publishing and installing packages.

You can configure multiple registries and switch between them; the
current one is used when no --registry flag is given.`,
}

// registryAddCmd adds a new registry
var registryAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a new registry",
	Long: `Add a named registry configuration.

Examples:
  depot registry add public https://registry.example.com
  depot registry add local http://localhost:8080`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegistryAdd(args[0], args[1])
	},
}

// registryListCmd lists configured registries
var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured registries",
	Long:  `List all configured registries showing name, URL, and active status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegistryList()
	},
}

// registryUseCmd sets the active registry
var registryUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set active registry",
	Long:  `Set the active registry for publishing and installing packages.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegistryUse(args[0])
	},
}

func runRegistryAdd(name, url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("registry URL must start with http:// or https://")
	}

	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Registries[name] = config.Registry{URL: url}

	// First registry becomes the active one.
	if cfg.Current == "" {
		cfg.Current = name
	}

	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Added registry '%s'\n", name)
	fmt.Printf("🌐 URL: %s\n", url)
	if cfg.Current == name {
		fmt.Printf("⭐ Set as active registry\n")
	}
	fmt.Printf("💡 Use 'depot auth login' to authenticate with this registry\n")

	return nil
}

func runRegistryList() error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if len(cfg.Registries) == 0 {
		fmt.Printf("No registries configured. Use 'depot registry add' to add one.\n")
		return nil
	}

	names := make([]string, 0, len(cfg.Registries))
	for name := range cfg.Registries {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("📋 Configured registries:\n\n")
	for _, name := range names {
		reg := cfg.Registries[name]
		marker := "  "
		if name == cfg.Current {
			marker = "⭐"
		}
		fmt.Printf("%s %s\n", marker, name)
		fmt.Printf("   🌐 %s\n", reg.URL)
		if reg.Username != "" {
			fmt.Printf("   👤 %s\n", reg.Username)
		}
	}

	return nil
}

func runRegistryUse(name string) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, exists := cfg.Registries[name]; !exists {
		return fmt.Errorf("registry '%s' not found. Use 'depot registry list' to see available registries", name)
	}

	cfg.Current = name
	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("⭐ Active registry set to '%s'\n", name)

	return nil
}

func init() {
	registryCmd.AddCommand(registryAddCmd)
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryUseCmd)
}
