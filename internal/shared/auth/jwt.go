// Package auth issues and verifies the bearer tokens the portal and the staff
// console send.
package auth

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleStaff  = "staff"
	RoleClient = "client"

	// Issuer is stamped on every token and required on verify.
	Issuer = "intake-backend"

	defaultTTL = 12 * time.Hour
	clockSkew  = 30 * time.Second
)

// Claims is the caller identity carried by a token. Role decides the upload
// channel and which pipeline operations the caller may trigger.
type Claims struct {
	Sub   string   `json:"sub"`
	Role  string   `json:"role"`
	Name  string   `json:"name,omitempty"`
	Cases []string `json:"cases,omitempty"`
	Exp   int64    `json:"exp,omitempty"`
	Iat   int64    `json:"iat,omitempty"`
}

type tokenClaims struct {
	Role  string   `json:"role"`
	Name  string   `json:"name,omitempty"`
	Cases []string `json:"cases,omitempty"`
	jwt.RegisteredClaims
}

var (
	errMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

// SignJWT signs claims with HS256. Iat and Exp default to now and now+12h.
func SignJWT(claims Claims) (string, error) {
	secret, err := secretKey()
	if err != nil {
		return "", err
	}
	if claims.Sub == "" {
		return "", errors.New("sub is required")
	}
	if !validRole(claims.Role) {
		return "", fmt.Errorf("unknown role %q", claims.Role)
	}

	now := time.Now().UTC()
	iat := now
	if claims.Iat != 0 {
		iat = time.Unix(claims.Iat, 0)
	}
	exp := now.Add(defaultTTL)
	if claims.Exp != 0 {
		exp = time.Unix(claims.Exp, 0)
	}
	tc := tokenClaims{
		Role:  claims.Role,
		Name:  claims.Name,
		Cases: claims.Cases,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Sub,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(secret)
}

// VerifyJWT checks the signature, issuer and expiry of token and returns its
// claims. Every failure maps to ErrInvalidToken.
func VerifyJWT(token string) (Claims, error) {
	secret, err := secretKey()
	if err != nil {
		return Claims{}, err
	}

	var tc tokenClaims
	_, err = jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" || !validRole(tc.Role) {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{Sub: tc.Subject, Role: tc.Role, Name: tc.Name, Cases: tc.Cases}
	if tc.ExpiresAt != nil {
		out.Exp = tc.ExpiresAt.Unix()
	}
	if tc.IssuedAt != nil {
		out.Iat = tc.IssuedAt.Unix()
	}
	return out, nil
}

// CanAccessCase reports whether the holder may act on caseID. Staff see every
// case; clients only the cases listed in their token.
func (c Claims) CanAccessCase(caseID string) bool {
	return c.Role == RoleStaff || slices.Contains(c.Cases, caseID)
}

func validRole(role string) bool {
	return role == RoleStaff || role == RoleClient
}

func secretKey() ([]byte, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret != "" {
		return []byte(secret), nil
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ENV"))) {
	case "production", "prod":
		return nil, fmt.Errorf("%w: JWT_SECRET required in production", errMissingSecret)
	}
	return []byte("dev-secret"), nil
}
