package utils_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

func TestJwtRoundTrip(t *testing.T) {
	token, err := utils.JwtGenerate("ops1", []string{"OPS", "ANALYST"})
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	parsed, err := utils.JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	claims, ok := parsed.Claims.(*utils.JwtCustomClaim)
	if !ok || !parsed.Valid {
		t.Fatalf("expected valid custom claims, got %T valid=%v", parsed.Claims, parsed.Valid)
	}
	if claims.Login != "ops1" {
		t.Fatalf("expected login ops1, got %q", claims.Login)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "OPS" || claims.Roles[1] != "ANALYST" {
		t.Fatalf("unexpected roles %v", claims.Roles)
	}
	if claims.ExpiresAt <= claims.IssuedAt {
		t.Fatalf("token must expire after issue: iat=%d exp=%d", claims.IssuedAt, claims.ExpiresAt)
	}
}

func TestJwtValidateRejectsTampering(t *testing.T) {
	token, err := utils.JwtGenerate("ops1", []string{"OPS"})
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := utils.JwtValidate(tampered); err == nil {
		t.Fatalf("a tampered signature must not validate")
	}
	if _, err := utils.JwtValidate("garbage"); err == nil {
		t.Fatalf("a malformed token must not validate")
	}
}
