package cli

import (
	"fmt"

	"depot/internal/client"
	"depot/internal/config"
)

// selectRegistry returns the registry to talk to: the --registry flag
// when given, otherwise the config's current selection.
func selectRegistry(cfg config.CLIConfig) (string, config.Registry, error) {
	name := cfg.Current
	if registryOverride != "" {
		name = registryOverride
	}

	if name == "" {
		return "", config.Registry{}, fmt.Errorf("no registry configured. Use 'depot registry add' to add one")
	}

	reg, exists := cfg.Registries[name]
	if !exists {
		return "", config.Registry{}, fmt.Errorf("registry '%s' not found. Use 'depot registry list' to see available registries", name)
	}

	return name, reg, nil
}

// newRegistryClient loads the CLI config, picks the active registry,
// and builds a client for it. Commands that need authentication check
// the saved token themselves via requireToken.
func newRegistryClient() (config.Registry, *client.Client, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return config.Registry{}, nil, fmt.Errorf("failed to load config: %w", err)
	}

	name, reg, err := selectRegistry(cfg)
	if err != nil {
		return config.Registry{}, nil, err
	}

	if verbose {
		fmt.Printf("🌐 Registry: %s (%s)\n", name, reg.URL)
	}

	return reg, client.New(reg.URL, reg.Token, verbose), nil
}

// newClientFor builds a client for an already selected registry.
func newClientFor(reg config.Registry) *client.Client {
	return client.New(reg.URL, reg.Token, verbose)
}

// requireToken complains when the registry has no saved credential.
func requireToken(reg config.Registry) error {
	if reg.Token == "" {
		return fmt.Errorf("no authentication token for this registry. Use 'depot auth login' first")
	}
	return nil
}
