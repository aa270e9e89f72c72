package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HashToken creates a salted SHA-256 hash of an opaque registry
// token. Only the hash is stored.
func HashToken(token, salt string) string {
	h := sha256.New()
	h.Write([]byte(token + salt))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// CreateToken stores a new opaque token hash for a user.
func (db *DB) CreateToken(ctx context.Context, userID, tokenHash string, name *string, expiresAt *time.Time) (*Token, error) {
	token := Token{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		TokenHash: tokenHash,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	_, err := db.ExecContext(ctx, `
        INSERT INTO tokens (id, user_id, name, token_hash, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.UserID, token.Name, token.TokenHash, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	return &token, nil
}

// ValidateToken looks up a token by hash, rejecting expired tokens,
// and returns the owning user.
func (db *DB) ValidateToken(ctx context.Context, tokenHash string) (*User, error) {
	var token Token
	err := db.GetContext(ctx, &token, `
        SELECT id, user_id, name, token_hash, created_at, expires_at, last_used_at
        FROM tokens WHERE token_hash = $1`,
		tokenHash)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}

	if token.ExpiresAt != nil && time.Now().UTC().After(*token.ExpiresAt) {
		return nil, fmt.Errorf("%w: token expired", ErrNotFound)
	}

	now := time.Now().UTC()
	if _, err := db.ExecContext(ctx,
		`UPDATE tokens SET last_used_at = $1 WHERE id = $2`, now, token.ID); err != nil {
		return nil, fmt.Errorf("failed to touch token: %w", err)
	}

	return db.GetUserByID(ctx, token.UserID)
}
