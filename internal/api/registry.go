package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RouteMetadata contains metadata for a route
type RouteMetadata struct {
	Path                   string
	Method                 string
	RequiresAuthentication bool
	Handler                http.HandlerFunc
	Description            string
	RateLimit              int // requests per minute, 0 = no limit
}

// RouteRegistry manages route metadata and registration
type RouteRegistry struct {
	routes []RouteMetadata
}

// NewRouteRegistry creates a new route registry
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{
		routes: make([]RouteMetadata, 0),
	}
}

// RegisterRoute registers a route with metadata
func (rr *RouteRegistry) RegisterRoute(path, method string, requiresAuth bool, handler http.HandlerFunc, description string) {
	rr.routes = append(rr.routes, RouteMetadata{
		Path:                   path,
		Method:                 method,
		RequiresAuthentication: requiresAuth,
		Handler:                handler,
		Description:            description,
	})
}

// RegisterRouteWithRateLimit registers a route with rate limiting
func (rr *RouteRegistry) RegisterRouteWithRateLimit(path, method string, requiresAuth bool, handler http.HandlerFunc, description string, rateLimit int) {
	rr.routes = append(rr.routes, RouteMetadata{
		Path:                   path,
		Method:                 method,
		RequiresAuthentication: requiresAuth,
		Handler:                handler,
		Description:            description,
		RateLimit:              rateLimit,
	})
}

// GetRouteMetadata retrieves metadata for a route by its path
// template and method. Middleware looks templates up via
// mux.CurrentRoute, so parameterized paths match correctly.
func (rr *RouteRegistry) GetRouteMetadata(path, method string) (RouteMetadata, bool) {
	for _, route := range rr.routes {
		if route.Path == path && route.Method == method {
			return route, true
		}
	}
	return RouteMetadata{}, false
}

// GetAllRoutes returns all registered routes
func (rr *RouteRegistry) GetAllRoutes() []RouteMetadata {
	return rr.routes
}

// SetupRoutes configures all routes with their metadata
func (s *Server) SetupRoutes(router *mux.Router) *RouteRegistry {
	registry := NewRouteRegistry()

	// Health endpoint - public, no auth required
	registry.RegisterRoute("/health", "GET", false, s.healthHandler, "API health check")
	router.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Create API v1 subrouter
	api := router.PathPrefix("/v1").Subrouter()

	// Account endpoints - public, tightly rate limited
	registry.RegisterRouteWithRateLimit("/v1/auth/register", "POST", false, s.registerHandler, "Create user account", 10)
	api.HandleFunc("/auth/register", s.registerHandler).Methods("POST")

	registry.RegisterRouteWithRateLimit("/v1/auth/login", "POST", false, s.loginHandler, "Authenticate and issue JWT", 10)
	api.HandleFunc("/auth/login", s.loginHandler).Methods("POST")

	// Registry token minting - requires a valid JWT
	registry.RegisterRoute("/v1/tokens", "POST", true, s.createTokenHandler, "Issue opaque registry token")
	api.HandleFunc("/tokens", s.createTokenHandler).Methods("POST")

	// Search - public, with rate limiting
	registry.RegisterRouteWithRateLimit("/v1/search", "GET", false, s.searchPackagesHandler, "Search packages", 60)
	api.HandleFunc("/search", s.searchPackagesHandler).Methods("GET")

	// Blob download - public, with rate limiting for abuse prevention
	registry.RegisterRouteWithRateLimit("/v1/blobs/{digest}", "GET", false, s.downloadBlobHandler, "Download archive blob", 30)
	api.HandleFunc("/blobs/{digest}", s.downloadBlobHandler).Methods("GET")

	// Package metadata - public
	registry.RegisterRouteWithRateLimit("/v1/packages/{name}/versions/{version}", "GET", false, s.getVersionHandler, "Get package version", 120)
	api.HandleFunc("/packages/{name}/versions/{version}", s.getVersionHandler).Methods("GET")

	registry.RegisterRouteWithRateLimit("/v1/packages/{name}", "GET", false, s.getPackageHandler, "Get package details", 120)
	api.HandleFunc("/packages/{name}", s.getPackageHandler).Methods("GET")

	// Dependency resolution - public
	registry.RegisterRouteWithRateLimit("/v1/resolve", "POST", false, s.resolveHandler, "Resolve dependency set", 60)
	api.HandleFunc("/resolve", s.resolveHandler).Methods("POST")

	// Publishing - requires authentication, with rate limiting
	registry.RegisterRouteWithRateLimit("/v1/packages", "POST", true, s.publishPackageHandler, "Publish package", 10)
	api.HandleFunc("/packages", s.publishPackageHandler).Methods("POST")

	return registry
}
