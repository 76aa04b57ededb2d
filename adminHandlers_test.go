package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/gin-gonic/gin"
)

func rulesetTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := utils.SetActorLoginInContext(c.Request.Context(), "admin1")
		ctx = utils.SetActorRolesInContext(ctx, []string{"admin"})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.POST("/api/rulesets", activateRulesetHandler())
	return r
}

func postRuleset(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/rulesets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestActivateRulesetAcceptsSameDayWindow(t *testing.T) {
	r := rulesetTestRouter()

	// max_group_size out of range stops the request right after the
	// window check, so a zero-day window reaching that error proves it
	// passed both binding and validation.
	w := postRuleset(t, r, `{"version":"v9","amount_tolerance":"0.50","date_window_days":0,"score_threshold":0.8,"max_group_size":99,"high_value_threshold":"500000"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "max_group_size") {
		t.Fatalf("a zero-day window must pass validation, got: %s", w.Body.String())
	}
}

func TestActivateRulesetRejectsWindowOutOfRange(t *testing.T) {
	r := rulesetTestRouter()
	w := postRuleset(t, r, `{"version":"v9","amount_tolerance":"0.50","date_window_days":8,"score_threshold":0.8,"max_group_size":5,"high_value_threshold":"500000"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "date_window_days") {
		t.Fatalf("expected the window range error, got %d: %s", w.Code, w.Body.String())
	}
}
