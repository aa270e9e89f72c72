package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"depot/internal/api"
	"depot/internal/blob"
	"depot/internal/config"
	"depot/internal/db"
	"depot/internal/registry"
)

func main() {
	// Load environment variables
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load configuration
	cfg := config.Load()

	// Connect to database (applies migrations)
	database, err := db.Connect(cfg.DBURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	if err := database.Health(); err != nil {
		log.Fatal("Database health check failed:", err)
	}

	// Content-addressed artifact store
	store, err := blob.NewFilesystemStore(cfg.StoragePath)
	if err != nil {
		log.Fatal("Failed to open artifact store:", err)
	}

	reg := registry.New(store, database)

	// Set up router
	r := mux.NewRouter()
	api.RegisterRoutes(r, database, reg, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("API server starting on port %s", cfg.APIPort)
	log.Printf("Storage path: %s", cfg.StoragePath)
	log.Fatal(srv.ListenAndServe())
}
