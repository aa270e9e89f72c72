package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"depot/internal/config"
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long: `Authentication commands for user registration, login, and tokens.

Credentials are stored per registry in the CLI config.`,
}

// registerCmd handles user registration
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new user account",
	Long: `Register a new user account with username and password.

After registering, use 'depot auth login' to obtain a token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegister(cmd)
	},
}

// loginCmd handles user login
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to your user account",
	Long: `Login with username and password.

The issued token is saved in the CLI config for the active registry
and used by publish and token commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogin(cmd)
	},
}

// logoutCmd removes the saved credential
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout from the active registry",
	Long:  `Remove the saved token for the active registry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogout()
	},
}

// tokenCmd mints a long-lived publish token
var tokenCmd = &cobra.Command{
	Use:   "token <name>",
	Short: "Create a named access token",
	Long: `Create a named long-lived access token for the active registry.

The token value is printed once and cannot be recovered later. It
replaces the saved login token in the CLI config.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTokenCreate(cmd, args[0])
	},
}

func runRegister(cmd *cobra.Command) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	name, reg, err := selectRegistry(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("📝 Registering new account at %s\n\n", reg.URL)

	username, err := promptLine("Username: ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	c := newClientFor(reg)
	if err := c.Register(cmd.Context(), username, password); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Printf("✅ Registered user '%s' at %s\n", username, name)
	fmt.Printf("💡 Use 'depot auth login' to authenticate\n")

	return nil
}

func runLogin(cmd *cobra.Command) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	name, reg, err := selectRegistry(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("🔑 Logging in to %s\n\n", reg.URL)

	username, err := promptLine("Username: ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	c := newClientFor(reg)
	token, err := c.Login(cmd.Context(), username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	reg.Username = username
	reg.Token = token
	cfg.Registries[name] = reg

	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Logged in as '%s'\n", username)

	return nil
}

func runLogout() error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	name, reg, err := selectRegistry(cfg)
	if err != nil {
		return err
	}

	if reg.Token == "" {
		fmt.Printf("Not logged in to '%s'\n", name)
		return nil
	}

	reg.Token = ""
	cfg.Registries[name] = reg

	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Logged out from '%s'\n", name)

	return nil
}

func runTokenCreate(cmd *cobra.Command, tokenName string) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	name, reg, err := selectRegistry(cfg)
	if err != nil {
		return err
	}
	if err := requireToken(reg); err != nil {
		return err
	}

	c := newClientFor(reg)
	plaintext, err := c.CreateToken(cmd.Context(), tokenName)
	if err != nil {
		return fmt.Errorf("token creation failed: %w", err)
	}

	reg.Token = plaintext
	cfg.Registries[name] = reg
	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Created token '%s'\n", tokenName)
	fmt.Printf("🔑 %s\n", plaintext)
	fmt.Printf("⚠️  Save this value now; it is shown only once\n")

	return nil
}

// promptLine reads one trimmed line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("input cannot be empty")
	}
	return line, nil
}

// promptPassword reads a password without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func init() {
	authCmd.AddCommand(registerCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(tokenCmd)
}
