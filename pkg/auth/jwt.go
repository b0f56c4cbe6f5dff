package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
	ErrInvalidRole   = errors.New("invalid role")
	ErrShortSecret   = errors.New("secret must be at least 32 characters")
)

// Valid roles. Only admins may run server-side import/export.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

var validRoles = map[string]bool{
	RoleAdmin:  true,
	RoleClient: true,
}

// Claims carries the validated identity of a caller.
type Claims struct {
	Subject string
	Role    string
}

// JWTGate validates bearer tokens from the operation context and admits
// privileged operations for admin-role tokens.
type JWTGate struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// NewJWTGate creates a gate signing and validating with secret. Returns an
// error if the secret is shorter than 32 characters.
func NewJWTGate(secret string, tokenDuration time.Duration) (*JWTGate, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}
	return &JWTGate{secretKey: []byte(secret), tokenDuration: tokenDuration}, nil
}

// GenerateToken issues a token for subject with the given role.
func (g *JWTGate) GenerateToken(subject, role string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidClaims)
	}
	if !validRoles[role] {
		return "", fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  now.Add(g.tokenDuration).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a token string.
func (g *JWTGate) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}
		return g.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || !validRoles[role] {
		return nil, ErrInvalidClaims
	}
	return &Claims{Subject: sub, Role: role}, nil
}

// Authorize implements the Authorizer contract: the context must carry a
// valid admin token.
func (g *JWTGate) Authorize(ctx context.Context, op string) error {
	tokenString, ok := TokenFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: %w for %s", lob.ErrPermissionDenied, ErrNoCredentials, op)
	}
	claims, err := g.ValidateToken(tokenString)
	if err != nil {
		return fmt.Errorf("%w: %w", lob.ErrPermissionDenied, err)
	}
	if claims.Role != RoleAdmin {
		return fmt.Errorf("%w: role %q may not run %s", lob.ErrPermissionDenied, claims.Role, op)
	}
	return nil
}
