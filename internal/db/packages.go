package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"depot/internal/version"
)

// isUniqueViolation classifies the driver-specific unique constraint
// errors from postgres (SQLSTATE 23505) and sqlite.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}

// RecordVersion durably appends a new package version. It returns
// ErrInvalidVersion if the version string does not parse under the
// registry's versioning scheme and ErrVersionExists if the
// (package, version) pair is already present. Uniqueness is enforced
// by the database constraint inside one transaction: under concurrent
// publishes of the same pair exactly one commit wins and the loser
// observes the unique violation.
func (db *DB) RecordVersion(ctx context.Context, rec VersionRecord) (*Version, error) {
	if _, err := version.Parse(rec.Version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}

	now := time.Now().UTC()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Create the package row on first publish. The statement text is
	// accepted by both drivers.
	_, err = tx.ExecContext(ctx, `
        INSERT INTO packages (id, name, description, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (name) DO NOTHING`,
		uuid.NewString(), rec.Package, rec.Description, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create package: %w", err)
	}

	var pkg Package
	if err := tx.GetContext(ctx, &pkg,
		`SELECT id, name, description, created_at, updated_at FROM packages WHERE name = $1`,
		rec.Package); err != nil {
		return nil, fmt.Errorf("failed to load package: %w", err)
	}

	v := Version{
		ID:           uuid.NewString(),
		PackageID:    pkg.ID,
		Package:      pkg.Name,
		Version:      rec.Version,
		Digest:       rec.Digest,
		SizeBytes:    rec.SizeBytes,
		Publisher:    rec.Publisher,
		Dependencies: rec.Dependencies,
		PublishedAt:  now,
	}
	if v.Dependencies == nil {
		v.Dependencies = Constraints{}
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO versions (id, package_id, version, digest, size_bytes, publisher, dependencies, published_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.PackageID, v.Version, v.Digest, v.SizeBytes, v.Publisher, v.Dependencies, v.PublishedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s@%s", ErrVersionExists, rec.Package, rec.Version)
		}
		return nil, fmt.Errorf("failed to record version: %w", err)
	}

	if rec.Description != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE packages SET description = $1, updated_at = $2 WHERE id = $3`,
			rec.Description, now, pkg.ID); err != nil {
			return nil, fmt.Errorf("failed to update package: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s@%s", ErrVersionExists, rec.Package, rec.Version)
		}
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}

	return &v, nil
}

// ListVersions returns all versions of a package ordered by version
// precedence, highest first. An unknown package yields an empty
// slice, not an error.
func (db *DB) ListVersions(ctx context.Context, name string) ([]Version, error) {
	var versions []Version
	err := db.SelectContext(ctx, &versions, `
        SELECT v.id, v.package_id, p.name, v.version, v.digest, v.size_bytes,
               v.publisher, v.dependencies, v.published_at
        FROM versions v
        JOIN packages p ON p.id = v.package_id
        WHERE p.name = $1`,
		name)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	// Precedence ordering is computed here, not in SQL: version
	// strings do not sort lexically.
	sort.SliceStable(versions, func(i, j int) bool {
		cmp, err := version.Compare(versions[i].Version, versions[j].Version)
		if err != nil {
			return false
		}
		return cmp > 0
	})

	return versions, nil
}

// GetVersion retrieves one version of a package, or ErrNotFound.
func (db *DB) GetVersion(ctx context.Context, name, ver string) (*Version, error) {
	var v Version
	err := db.GetContext(ctx, &v, `
        SELECT v.id, v.package_id, p.name, v.version, v.digest, v.size_bytes,
               v.publisher, v.dependencies, v.published_at
        FROM versions v
        JOIN packages p ON p.id = v.package_id
        WHERE p.name = $1 AND v.version = $2`,
		name, ver)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, name, ver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	return &v, nil
}

// GetPackage retrieves a package by name, or ErrNotFound.
func (db *DB) GetPackage(ctx context.Context, name string) (*Package, error) {
	var pkg Package
	err := db.GetContext(ctx, &pkg,
		`SELECT id, name, description, created_at, updated_at FROM packages WHERE name = $1`,
		name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: package %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get package: %w", err)
	}

	return &pkg, nil
}

// SearchPackages finds packages whose name or description contains
// the query term, with the highest published version attached.
func (db *DB) SearchPackages(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	type row struct {
		Name        string `db:"name"`
		Description string `db:"description"`
		Version     string `db:"version"`
	}

	var rows []row
	err := db.SelectContext(ctx, &rows, `
        SELECT p.name, p.description, v.version
        FROM packages p
        JOIN versions v ON v.package_id = p.id
        WHERE LOWER(p.name) LIKE $1 OR LOWER(p.description) LIKE $1
        ORDER BY p.name`,
		"%"+strings.ToLower(query)+"%")
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	byName := make(map[string][]string)
	desc := make(map[string]string)
	order := make([]string, 0)
	for _, r := range rows {
		if _, seen := byName[r.Name]; !seen {
			order = append(order, r.Name)
			desc[r.Name] = r.Description
		}
		byName[r.Name] = append(byName[r.Name], r.Version)
	}

	results := make([]SearchResult, 0, len(order))
	for _, name := range order {
		if len(results) >= limit {
			break
		}
		vs := byName[name]
		version.SortDescending(vs)
		results = append(results, SearchResult{
			Name:        name,
			Description: desc[name],
			Latest:      vs[0],
		})
	}

	return results, nil
}
