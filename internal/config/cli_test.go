package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigDir(t *testing.T) {
	dir, err := ConfigDir()
	if err != nil {
		t.Errorf("ConfigDir() returned error: %v", err)
	}

	if filepath.Base(dir) != ".depot" {
		t.Errorf("ConfigDir() = %q, expected to end with .depot", dir)
	}
}

func TestConfigPath(t *testing.T) {
	path, err := ConfigPath()
	if err != nil {
		t.Errorf("ConfigPath() returned error: %v", err)
	}

	if filepath.Base(path) != "config.toml" {
		t.Errorf("ConfigPath() = %q, expected to end with config.toml", path)
	}
}

func TestLoadCLIFrom(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("loads empty config when file doesn't exist", func(t *testing.T) {
		config, err := LoadCLIFrom(filepath.Join(tempDir, "missing.toml"))
		if err != nil {
			t.Errorf("LoadCLIFrom() returned error: %v", err)
		}

		if config.Current != "" {
			t.Errorf("expected empty current, got %q", config.Current)
		}
		if config.Registries == nil {
			t.Error("expected initialized registries map")
		}
		if len(config.Registries) != 0 {
			t.Errorf("expected empty registries, got %d", len(config.Registries))
		}
	})

	t.Run("loads valid config file", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "config.toml")
		configContent := `current = "local"

[registries.local]
url = "http://localhost:8080"
token = "depot_abc123"

[registries.public]
url = "https://registry.example.com"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		config, err := LoadCLIFrom(configPath)
		if err != nil {
			t.Errorf("LoadCLIFrom() returned error: %v", err)
		}

		if config.Current != "local" {
			t.Errorf("expected current 'local', got %q", config.Current)
		}
		if len(config.Registries) != 2 {
			t.Errorf("expected 2 registries, got %d", len(config.Registries))
		}

		localReg, exists := config.Registries["local"]
		if !exists {
			t.Error("expected 'local' registry to exist")
		} else {
			if localReg.URL != "http://localhost:8080" {
				t.Errorf("expected local URL 'http://localhost:8080', got %q", localReg.URL)
			}
			if localReg.Token != "depot_abc123" {
				t.Errorf("expected local token 'depot_abc123', got %q", localReg.Token)
			}
		}

		publicReg, exists := config.Registries["public"]
		if !exists {
			t.Error("expected 'public' registry to exist")
		} else if publicReg.Token != "" {
			t.Errorf("expected empty public token, got %q", publicReg.Token)
		}
	})

	t.Run("handles invalid TOML", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "bad.toml")
		if err := os.WriteFile(configPath, []byte(`invalid toml content [[[`), 0o600); err != nil {
			t.Fatalf("failed to write invalid config file: %v", err)
		}

		if _, err := LoadCLIFrom(configPath); err == nil {
			t.Error("expected error for invalid TOML")
		}
	})
}

func TestSaveCLITo(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("saves config successfully", func(t *testing.T) {
		configPath := filepath.Join(tempDir, ".depot", "config.toml")
		config := CLIConfig{
			Current: "test",
			Registries: map[string]Registry{
				"test": {
					URL:   "https://test.example.com",
					Token: "depot_secret",
				},
				"public": {
					URL: "https://public.example.com",
				},
			},
		}

		if err := SaveCLITo(configPath, config); err != nil {
			t.Errorf("SaveCLITo() returned error: %v", err)
		}

		info, err := os.Stat(configPath)
		if os.IsNotExist(err) {
			t.Fatal("config file was not created")
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
		}

		loaded, err := LoadCLIFrom(configPath)
		if err != nil {
			t.Errorf("failed to load saved config: %v", err)
		}

		if loaded.Current != config.Current {
			t.Errorf("current mismatch: expected %q, got %q", config.Current, loaded.Current)
		}
		if len(loaded.Registries) != len(config.Registries) {
			t.Errorf("registries count mismatch: expected %d, got %d", len(config.Registries), len(loaded.Registries))
		}

		for name, want := range config.Registries {
			got, exists := loaded.Registries[name]
			if !exists {
				t.Errorf("registry %q not found in loaded config", name)
				continue
			}
			if got.URL != want.URL {
				t.Errorf("registry %q URL mismatch: expected %q, got %q", name, want.URL, got.URL)
			}
			if got.Token != want.Token {
				t.Errorf("registry %q token mismatch: expected %q, got %q", name, want.Token, got.Token)
			}
		}
	})

	t.Run("creates directory if it doesn't exist", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "fresh", "nested", "config.toml")

		config := CLIConfig{
			Current:    "test",
			Registries: map[string]Registry{},
		}

		if err := SaveCLITo(configPath, config); err != nil {
			t.Errorf("SaveCLITo() returned error: %v", err)
		}

		if _, err := os.Stat(filepath.Dir(configPath)); os.IsNotExist(err) {
			t.Error("config directory was not created")
		}
	})
}
