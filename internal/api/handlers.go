package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"depot/internal/archive"
	"depot/internal/blob"
	"depot/internal/db"
	"depot/internal/digest"
	"depot/internal/registry"
	"depot/internal/resolve"
	"depot/internal/version"
)

// healthHandler returns API health status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.Health(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "depot-api",
		"version": "1.0.0",
	})
}

// searchPackagesHandler searches for packages by name or description
func (s *Server) searchPackagesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := 50 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	results, err := s.DB.SearchPackages(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// getPackageHandler gets package information with its version list,
// highest precedence first
func (s *Server) getPackageHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	pkg, err := s.DB.GetPackage(r.Context(), name)
	if errors.Is(err, db.ErrNotFound) {
		writeErrorKind(w, http.StatusNotFound, "not-found", "Package not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load package")
		return
	}

	versions, err := s.DB.ListVersions(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load versions")
		return
	}

	writeJSON(w, http.StatusOK, db.PackageInfo{Package: *pkg, Versions: versions})
}

// getVersionHandler gets one published version record
func (s *Server) getVersionHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	version, err := s.DB.GetVersion(r.Context(), vars["name"], vars["version"])
	if errors.Is(err, db.ErrNotFound) {
		writeErrorKind(w, http.StatusNotFound, "not-found", "Package version not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load version")
		return
	}

	writeJSON(w, http.StatusOK, version)
}

// publishPackageHandler handles package publishing
func (s *Server) publishPackageHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	archiveFile, _, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Archive file required")
		return
	}
	defer archiveFile.Close()

	archiveBytes, err := io.ReadAll(archiveFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read archive")
		return
	}

	receipt, err := s.Reg.Publish(r.Context(), registry.PublishRequest{
		Archive:   archiveBytes,
		Publisher: user.Username,
		Checksum:  r.FormValue("checksum"),
	})
	if err != nil {
		s.writePublishError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// writePublishError maps publish pipeline failures onto the API's
// status codes: validation 422, version conflict 409, the rest 500.
func (s *Server) writePublishError(w http.ResponseWriter, err error) {
	var ve *archive.ValidationError
	if errors.As(err, &ve) {
		writeErrorKind(w, http.StatusUnprocessableEntity, ve.Kind, ve.Error())
		return
	}

	if errors.Is(err, db.ErrVersionExists) {
		writeErrorKind(w, http.StatusConflict, "version-exists", "Package version already exists")
		return
	}
	if errors.Is(err, db.ErrInvalidVersion) {
		writeErrorKind(w, http.StatusUnprocessableEntity, "manifest", err.Error())
		return
	}

	writeError(w, http.StatusInternalServerError, "Publish failed")
}

// downloadBlobHandler serves verified archive bytes by digest
func (s *Server) downloadBlobHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	d, err := digest.Parse(vars["digest"])
	if err != nil {
		writeErrorKind(w, http.StatusNotFound, "not-found", "Unknown digest")
		return
	}

	b, err := s.Reg.Artifact(r.Context(), d)
	if errors.Is(err, blob.ErrNotFound) {
		writeErrorKind(w, http.StatusNotFound, "not-found", "Blob not found")
		return
	}
	if err != nil {
		// Includes detected corruption: the registry has logged
		// the digest, the client gets a plain server error.
		writeError(w, http.StatusInternalServerError, "Failed to read blob")
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.String()[:12]+".tgz"))
	w.Write(b)
}

// resolveRequest is the body of POST /v1/resolve.
type resolveRequest struct {
	Requirements map[string]string `json:"requirements"`
}

// resolveHandler resolves a requirement set against the index
func (s *Server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Requirements) == 0 {
		writeError(w, http.StatusBadRequest, "At least one requirement is required")
		return
	}

	reqs := make([]resolve.Requirement, 0, len(req.Requirements))
	for name, constraint := range req.Requirements {
		if _, err := version.ParseConstraint(constraint); err != nil {
			writeErrorKind(w, http.StatusUnprocessableEntity, "constraint",
				fmt.Sprintf("invalid constraint %q for %s", constraint, name))
			return
		}
		reqs = append(reqs, resolve.Requirement{Name: name, Constraint: constraint})
	}

	resolution, err := s.Reg.Resolve(r.Context(), reqs)
	if err != nil {
		var ue *resolve.UnsatisfiableError
		if errors.As(err, &ue) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":       ue.Error(),
				"kind":        "unsatisfiable",
				"name":        ue.Name,
				"constraints": ue.Constraints,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "Resolution failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"packages": resolution})
}
