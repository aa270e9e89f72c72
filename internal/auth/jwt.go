package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"depot/internal/db"
)

// DefaultTokenDuration is the default JWT expiration time.
const DefaultTokenDuration = 24 * time.Hour

// TokenPrefix marks opaque registry tokens so clients and middleware
// can tell them apart from JWTs at a glance.
const TokenPrefix = "depot_"

// JWTClaims are the claims carried by a session token.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates session tokens.
type JWTManager struct {
	secretKey     string
	tokenDuration time.Duration
}

// NewJWTManager creates a new JWT manager.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     secretKey,
		tokenDuration: tokenDuration,
	}
}

// GenerateToken signs a new session token for a user.
func (j *JWTManager) GenerateToken(user *db.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.tokenDuration)

	claims := JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   user.ID,
			Issuer:    "depot-api",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateToken parses and validates a session token.
func (j *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.secretKey), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// NewOpaqueToken mints a long-lived registry token for use by CI and
// scripted publishers. Only its salted hash ever reaches the
// database; the plaintext is shown once.
func NewOpaqueToken() string {
	return TokenPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsOpaqueToken reports whether a bearer credential is an opaque
// registry token rather than a JWT.
func IsOpaqueToken(credential string) bool {
	return strings.HasPrefix(credential, TokenPrefix)
}
