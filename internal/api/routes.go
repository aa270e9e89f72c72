package api

import (
	"github.com/gorilla/mux"

	"depot/internal/config"
	"depot/internal/db"
	"depot/internal/registry"
)

// Server holds dependencies for API handlers
type Server struct {
	DB     *db.DB
	Reg    *registry.Registry
	Config config.Config
	Routes *RouteRegistry
}

// RegisterRoutes sets up all API routes and middleware
func RegisterRoutes(r *mux.Router, database *db.DB, reg *registry.Registry, cfg config.Config) {
	s := &Server{
		DB:     database,
		Reg:    reg,
		Config: cfg,
	}

	routes := s.SetupRoutes(r)
	s.Routes = routes

	// Apply middleware in order (outermost to innermost)
	r.Use(panicRecoveryMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.requestSizeLimitMiddleware(64 * 1024 * 1024)) // 64MB max request size
	r.Use(s.rateLimitMiddleware(routes))
	r.Use(s.authMiddleware(routes))
}
