package middlewares

import (
	"testing"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

func TestResolveTokenLoginFallsBackToJwtWithoutRedis(t *testing.T) {
	if config.GetRedisDB() != nil {
		t.Skip("redis is connected; this covers the redis-less path")
	}

	token, err := utils.JwtGenerate("auditor1", []string{"AUDITOR"})
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	login, err := resolveTokenLogin(token)
	if err != nil {
		t.Fatalf("a freshly issued token must resolve without redis: %v", err)
	}
	if login != "auditor1" {
		t.Fatalf("expected login auditor1, got %q", login)
	}
}

func TestResolveTokenLoginRejectsBadTokenWithoutRedis(t *testing.T) {
	if config.GetRedisDB() != nil {
		t.Skip("redis is connected; this covers the redis-less path")
	}

	for _, token := range []string{"not-a-jwt", "aaa.bbb.ccc", ""} {
		if _, err := resolveTokenLogin(token); err == nil {
			t.Fatalf("token %q must not resolve", token)
		}
	}
}
