package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/uxtrace/uxtrace/middleware"
)

const issuer = "uxtrace-collector"

// HMACValidator validates read-API bearer tokens signed with a shared
// secret. It implements middleware.TokenValidator.
type HMACValidator struct {
	secret []byte
}

// NewHMACValidator creates a validator for the given shared secret
func NewHMACValidator(secret string) *HMACValidator {
	return &HMACValidator{secret: []byte(secret)}
}

// ValidateToken parses and verifies an HS256 token and returns its claims
func (v *HMACValidator) ValidateToken(ctx context.Context, tokenString string) (*middleware.Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	claims := &middleware.Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Sub = sub
	}
	if iss, err := mapClaims.GetIssuer(); err == nil {
		claims.Iss = iss
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.Exp = exp.Unix()
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.Iat = iat.Unix()
	}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}

	return claims, nil
}

// IssueToken signs a short-lived HS256 token for a subject. Used by
// operator tooling and tests.
func (v *HMACValidator) IssueToken(sub string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"iss": issuer,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
