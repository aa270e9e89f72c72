package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"

	"depot/internal/auth"
	"depot/internal/db"
)

// Context keys for authenticated identity
type contextKey string

const userContextKey contextKey = "user"

// authMiddleware enforces per-route authentication. JWTs are tried
// first, then opaque registry tokens; either way the authenticated
// user lands in the request context and handlers never see
// credentials.
func (s *Server) authMiddleware(routes *RouteRegistry) func(http.Handler) http.Handler {
	jwtManager := auth.NewJWTManager(s.Config.JWTSecret, auth.DefaultTokenDuration)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip OPTIONS requests
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			metadata, found := s.routeMetadata(routes, r)
			if found && !metadata.RequiresAuthentication {
				next.ServeHTTP(w, r)
				return
			}
			// Unknown routes default to requiring authentication.

			credential, err := bearerCredential(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			user, err := s.authenticate(r.Context(), jwtManager, credential)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate resolves a bearer credential to a user. Opaque
// registry tokens carry a recognizable prefix; everything else is
// treated as a JWT.
func (s *Server) authenticate(ctx context.Context, jwtManager *auth.JWTManager, credential string) (*db.User, error) {
	if auth.IsOpaqueToken(credential) {
		return s.DB.ValidateToken(ctx, db.HashToken(credential, s.Config.TokenSalt))
	}

	claims, err := jwtManager.ValidateToken(credential)
	if err != nil {
		return nil, err
	}
	return s.DB.GetUserByID(ctx, claims.UserID)
}

func bearerCredential(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization header required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Authorization header must be 'Bearer <token>'")
	}
	if parts[1] == "" {
		return "", errors.New("Token cannot be empty")
	}

	return parts[1], nil
}

// routeMetadata looks up registry metadata for the matched route.
// mux has already matched by the time middleware runs, so the path
// template covers parameterized routes too.
func (s *Server) routeMetadata(routes *RouteRegistry, r *http.Request) (RouteMetadata, bool) {
	if routes == nil {
		return RouteMetadata{}, false
	}

	path := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			path = template
		}
	}

	return routes.GetRouteMetadata(path, r.Method)
}

// writeJSON writes JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErrorKind writes a JSON error response with a machine-readable
// kind, so clients can branch without parsing messages.
func writeErrorKind(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error": message, "kind": kind})
}

// panicRecoveryMiddleware recovers from panics and returns a 500 error
func panicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				fmt.Fprintf(os.Stderr, "PANIC in %s %s: %v\n", r.Method, r.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// getUserFromContext retrieves the authenticated user, nil when the
// route is public.
func getUserFromContext(ctx context.Context) *db.User {
	user, ok := ctx.Value(userContextKey).(*db.User)
	if !ok {
		return nil
	}
	return user
}
