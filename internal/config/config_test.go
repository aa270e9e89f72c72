package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		expected     string
	}{
		{
			name:         "returns environment value when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "env_value",
			expected:     "env_value",
		},
		{
			name:         "returns default when env not set",
			key:          "UNSET_KEY",
			defaultValue: "default",
			envValue:     "",
			expected:     "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv(tt.key)
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			result := getEnv(tt.key, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("loads config with all env vars set", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://test")
		t.Setenv("TOKEN_SALT", "test_salt")
		t.Setenv("JWT_SECRET", "test_secret")
		t.Setenv("STORAGE_PATH", "/tmp/storage")
		t.Setenv("PORT", "9000")

		cfg := Load()

		if cfg.DBURL != "postgres://test" {
			t.Errorf("DBURL = %q, want %q", cfg.DBURL, "postgres://test")
		}
		if cfg.TokenSalt != "test_salt" {
			t.Errorf("TokenSalt = %q, want %q", cfg.TokenSalt, "test_salt")
		}
		if cfg.StoragePath != "/tmp/storage" {
			t.Errorf("StoragePath = %q, want %q", cfg.StoragePath, "/tmp/storage")
		}
		if cfg.APIPort != "9000" {
			t.Errorf("APIPort = %q, want %q", cfg.APIPort, "9000")
		}
	})

	t.Run("uses defaults for optional vars", func(t *testing.T) {
		t.Setenv("TOKEN_SALT", "test_salt")
		t.Setenv("JWT_SECRET", "test_secret")
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("STORAGE_PATH")
		os.Unsetenv("PORT")

		cfg := Load()

		if cfg.DBURL != "depot.db" {
			t.Errorf("DBURL = %q, want %q", cfg.DBURL, "depot.db")
		}
		if cfg.StoragePath != "./storage" {
			t.Errorf("StoragePath = %q, want %q", cfg.StoragePath, "./storage")
		}
		if cfg.APIPort != "8080" {
			t.Errorf("APIPort = %q, want %q", cfg.APIPort, "8080")
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `# server settings
PORT=9999
QUOTED="hello world"
SINGLE='one two'

TRIMMED =  spaced value
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"PORT", "QUOTED", "SINGLE", "TRIMMED"} {
		os.Unsetenv(key)
		defer os.Unsetenv(key)
	}
	// Pre-set values win over the file.
	t.Setenv("QUOTED", "from-env")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}

	if got := os.Getenv("PORT"); got != "9999" {
		t.Errorf("PORT = %q, want 9999", got)
	}
	if got := os.Getenv("QUOTED"); got != "from-env" {
		t.Errorf("QUOTED = %q, want pre-set value to win", got)
	}
	if got := os.Getenv("SINGLE"); got != "one two" {
		t.Errorf("SINGLE = %q, want quotes stripped", got)
	}
	if got := os.Getenv("TRIMMED"); got != "spaced value" {
		t.Errorf("TRIMMED = %q, want whitespace trimmed", got)
	}
}

func TestLoadEnvFileMissingIsNoError(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("LoadEnvFile(missing) error = %v, want nil", err)
	}
}

func TestLoadEnvFileMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("JUSTAKEY\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := LoadEnvFile(path); err == nil {
		t.Error("LoadEnvFile() accepted a line without =")
	}
}
