// Package auth issues and verifies frame tokens. A frame token binds a
// resolved handshake context (project and role) to every later API call.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"editdesk/api/internal/rbac"
)

type Claims struct {
	ProjectID string `json:"pid"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

func (c Claims) FrameRole() rbac.Role {
	return rbac.Normalize(c.Role)
}

// IssueToken signs claims for projectID. subject is an optional free-form identity.
func IssueToken(secret []byte, projectID string, role rbac.Role, subject string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(projectID) == "" {
		return "", time.Time{}, fmt.Errorf("issue token: project id is required")
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		ProjectID: projectID,
		Role:      string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if claims.ProjectID == "" || claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
