package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"depot/internal/auth"
	"depot/internal/config"
	"depot/internal/db"
)

func main() {
	// Load environment
	config.LoadEnvFile(".env")
	cfg := config.Load()

	ctx := context.Background()

	// Connect to database
	database, err := db.Connect(cfg.DBURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	// Create a dev user if it doesn't exist yet
	user, err := database.CreateUser(ctx, "dev", "dev-password-12345")
	if err != nil {
		if !errors.Is(err, db.ErrUsernameTaken) {
			log.Fatal("Failed to create dev user:", err)
		}
		user, err = database.GetUserByUsername(ctx, "dev")
		if err != nil {
			log.Fatal("Failed to load dev user:", err)
		}
		fmt.Printf("✅ Dev user already exists\n")
	} else {
		fmt.Printf("✅ Created dev user (password: dev-password-12345)\n")
	}

	// Mint an opaque publish token for the dev user
	plaintext := auth.NewOpaqueToken()
	name := "Development Token"
	if _, err := database.CreateToken(ctx, user.ID, db.HashToken(plaintext, cfg.TokenSalt), &name, nil); err != nil {
		log.Fatal("Failed to create token:", err)
	}

	fmt.Printf("🔑 Token: %s\n", plaintext)
	fmt.Printf("⚠️  Save this token - you'll need it for publishing\n\n")

	// Show setup instructions
	fmt.Printf("🚀 Setup complete! Next steps:\n")
	fmt.Printf("   1. Start API: go run ./cmd/api\n")
	fmt.Printf("   2. Add registry: ./depot registry add local http://localhost:8080\n")
	fmt.Printf("   3. Initialize package: ./depot init\n")
	fmt.Printf("   4. Pack and publish: ./depot pack && ./depot publish\n")
}
