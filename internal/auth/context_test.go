package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("issuer-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestNewContextDecodesClaims(t *testing.T) {
	tok := signed(t, jwt.MapClaims{
		"id":   17,
		"name": "Siti Aminah",
		"role": "siswa",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	ctx, err := NewContext("Bearer " + tok)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if ctx.Token() != tok {
		t.Fatal("bearer prefix should be stripped")
	}
	if ctx.Subject() != "17" || ctx.Role() != "siswa" || ctx.Claims().Name != "Siti Aminah" {
		t.Fatalf("unexpected claims: %+v", ctx.Claims())
	}
	if err := ctx.Valid(); err != nil {
		t.Fatalf("token should be valid: %v", err)
	}
}

func TestContextExpiry(t *testing.T) {
	exp := time.Now().Add(time.Minute)
	ctx, err := NewContext(signed(t, jwt.MapClaims{"user_id": 3, "token_type": "student", "exp": exp.Unix()}))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if ctx.Role() != "student" || ctx.Subject() != "3" {
		t.Fatalf("fallback claims: role=%q subject=%q", ctx.Role(), ctx.Subject())
	}

	ctx.now = func() time.Time { return exp.Add(time.Second) }
	if err := ctx.Valid(); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestNewContextRejectsBadTokens(t *testing.T) {
	if _, err := NewContext("   "); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("empty token: got %v", err)
	}
	if _, err := NewContext("not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage token: got %v", err)
	}
}
