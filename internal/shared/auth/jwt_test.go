package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := SignJWT(Claims{Sub: "client-7", Role: RoleClient, Name: "Jane", Cases: []string{"case-1"}})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	got, err := VerifyJWT(token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if got.Sub != "client-7" || got.Name != "Jane" || !got.CanAccessCase("case-1") || got.CanAccessCase("case-2") {
		t.Fatalf("unexpected claims %+v", got)
	}
	if got.Exp-got.Iat != int64(defaultTTL/time.Second) {
		t.Fatalf("expected a %s lifetime, got %ds", defaultTTL, got.Exp-got.Iat)
	}
}

func TestVerifyJWTRejects(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	now := time.Now()

	expired, _ := SignJWT(Claims{Sub: "s", Role: RoleStaff, Iat: now.Add(-2 * time.Hour).Unix(), Exp: now.Add(-time.Hour).Unix()})
	foreignIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "s", "role": RoleStaff, "iss": "someone-else", "exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "s", "role": RoleStaff, "iss": Issuer, "exp": now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "s", "role": RoleStaff, "iss": Issuer,
	}).SignedString([]byte("test-secret"))

	t.Setenv("JWT_SECRET", "other-secret")
	otherSecret, _ := SignJWT(Claims{Sub: "s", Role: RoleStaff})
	t.Setenv("JWT_SECRET", "test-secret")

	cases := map[string]string{
		"garbage":        "a.b.c",
		"expired":        expired,
		"foreign issuer": foreignIssuer,
		"alg none":       unsigned,
		"no expiry":      noExpiry,
		"wrong secret":   otherSecret,
	}
	for name, token := range cases {
		if _, err := VerifyJWT(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestSecretRequiredInProduction(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENV", "production")
	if _, err := SignJWT(Claims{Sub: "s", Role: RoleStaff}); !errors.Is(err, errMissingSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}
