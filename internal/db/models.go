package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors for index lookups and writes.
var (
	ErrNotFound       = errors.New("not found")
	ErrVersionExists  = errors.New("package version already exists")
	ErrInvalidVersion = errors.New("invalid version")
	ErrUsernameTaken  = errors.New("username already exists")
)

// Constraints maps dependency package names to version range
// expressions. Stored as a JSON text column so the same statement
// text works on postgres and sqlite.
type Constraints map[string]string

// Value implements driver.Valuer.
func (c Constraints) Value() (driver.Value, error) {
	if c == nil {
		c = Constraints{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *Constraints) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = Constraints{}
		return nil
	case string:
		return json.Unmarshal([]byte(v), c)
	case []byte:
		return json.Unmarshal(v, c)
	default:
		return errors.New("cannot scan Constraints")
	}
}

// Package is a registry package: a name owning an ordered set of
// versions. Created on first publish; never deleted.
type Package struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Version is one published version of a package.
type Version struct {
	ID           string      `db:"id" json:"id"`
	PackageID    string      `db:"package_id" json:"-"`
	Package      string      `db:"name" json:"package"`
	Version      string      `db:"version" json:"version"`
	Digest       string      `db:"digest" json:"digest"`
	SizeBytes    int64       `db:"size_bytes" json:"size_bytes"`
	Publisher    string      `db:"publisher" json:"publisher"`
	Dependencies Constraints `db:"dependencies" json:"dependencies"`
	PublishedAt  time.Time   `db:"published_at" json:"published_at"`
}

// VersionRecord is the input to RecordVersion.
type VersionRecord struct {
	Package      string
	Version      string
	Digest       string
	SizeBytes    int64
	Publisher    string
	Description  string
	Dependencies Constraints
}

// PackageInfo combines a package with its version list for API
// responses, versions ordered highest precedence first.
type PackageInfo struct {
	Package
	Versions []Version `json:"versions"`
}

// SearchResult is one row of a package search.
type SearchResult struct {
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Latest      string `db:"latest" json:"latest,omitempty"`
}

// User is a publisher account.
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Token is an opaque registry token, stored as a salted hash.
type Token struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Name       *string    `db:"name" json:"name"`
	TokenHash  string     `db:"token_hash" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at"`
}
