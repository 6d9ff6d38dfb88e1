package middleware

import (
	"strings"
	"testing"
	"time"
)

func testJWTConfig() JWTConfig {
	return JWTConfig{Secret: "test-secret", Issuer: "profile-hub", ExpiresIn: time.Hour}
}

func TestGenerateValidateRoundTrip(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateJWT("admin", "Administrator", "admin", cfg)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := validateJWT(token, cfg.Secret, cfg.Issuer)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "admin" || claims.Name != "Administrator" || claims.Role != "admin" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, _ := GenerateJWT("admin", "Administrator", "admin", cfg)

	if _, err := validateJWT(token, "other-secret", cfg.Issuer); err == nil {
		t.Error("expected rejection with wrong secret")
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, _ := GenerateJWT("admin", "Administrator", "admin", cfg)

	if _, err := validateJWT(token, cfg.Secret, "someone-else"); err == nil {
		t.Error("expected rejection with wrong issuer")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpiresIn = -time.Minute

	token, _ := GenerateJWT("admin", "Administrator", "admin", cfg)
	if _, err := validateJWT(token, cfg.Secret, cfg.Issuer); err == nil {
		t.Error("expected rejection of expired token")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	cfg := testJWTConfig()
	for _, token := range []string{"", "a.b", "a.b.c.d", strings.Repeat("x", 100)} {
		if _, err := validateJWT(token, cfg.Secret, cfg.Issuer); err == nil {
			t.Errorf("expected rejection of %q", token)
		}
	}
}
