package utils

import (
	"testing"
	"time"
)

func TestJwtGenerateAndValidate(t *testing.T) {
	// No TOKEN_HOUR_LIFESPAN set: the default lifespan applies.
	token, err := JwtGenerate(7, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	parsed, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok {
		t.Fatalf("unexpected claims type %T", parsed.Claims)
	}
	if claims.ID != 7 {
		t.Fatalf("expected id 7, got %d", claims.ID)
	}
	if claims.Role != "admin" {
		t.Fatalf("expected role admin, got %q", claims.Role)
	}
	if claims.ExpiresAt <= time.Now().Unix() {
		t.Fatalf("expected a future expiry, got %d", claims.ExpiresAt)
	}
}

func TestJwtLifespanOverride(t *testing.T) {
	t.Setenv("TOKEN_HOUR_LIFESPAN", "2")
	if got := tokenLifespan(); got != 2*time.Hour {
		t.Fatalf("expected 2h lifespan, got %s", got)
	}

	t.Setenv("TOKEN_HOUR_LIFESPAN", "not-a-number")
	if got := tokenLifespan(); got != defaultTokenLifespanHours*time.Hour {
		t.Fatalf("invalid override must fall back to the default, got %s", got)
	}
}

func TestJwtValidateRejectsGarbage(t *testing.T) {
	if _, err := JwtValidate("not.a.token"); err == nil {
		t.Fatalf("expected an error for a malformed token")
	}
}
