package main

import (
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func listRulesetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermAdminRules) {
			return
		}
		rulesets, err := models.ListRulesets(c.Request.Context())
		if err != nil {
			respondError(c, "adminHandlers.go", "listRulesetsHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rulesets": rulesets})
	}
}

type activateRulesetRequest struct {
	Version            string  `json:"version" binding:"required"`
	AmountTolerance    string  `json:"amount_tolerance" binding:"required"`
	DateWindowDays     int     `json:"date_window_days"`
	ScoreThreshold     float64 `json:"score_threshold" binding:"required"`
	MaxGroupSize       int     `json:"max_group_size" binding:"required"`
	HighValueThreshold string  `json:"high_value_threshold" binding:"required"`
}

// activateRulesetHandler registers a new tolerance version and makes it
// the active one. Past runs keep referencing the version they ran with.
func activateRulesetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermAdminRules) {
			return
		}
		var req activateRulesetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		tolerance, err := decimal.NewFromString(req.AmountTolerance)
		if err != nil || tolerance.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount_tolerance must be a non-negative decimal"})
			return
		}
		highValue, err := decimal.NewFromString(req.HighValueThreshold)
		if err != nil || highValue.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "high_value_threshold must be a non-negative decimal"})
			return
		}
		if req.ScoreThreshold <= 0 || req.ScoreThreshold > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "score_threshold must be in (0, 1]"})
			return
		}
		if req.DateWindowDays < 0 || req.DateWindowDays > 7 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_window_days must be between 0 and 7"})
			return
		}
		if req.MaxGroupSize < 2 || req.MaxGroupSize > 10 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_group_size must be between 2 and 10"})
			return
		}

		ruleset := models.MatchRuleset{
			Version:            req.Version,
			AmountTolerance:    tolerance,
			DateWindowDays:     req.DateWindowDays,
			ScoreThreshold:     req.ScoreThreshold,
			MaxGroupSize:       req.MaxGroupSize,
			HighValueThreshold: highValue,
		}
		if err := models.ActivateRuleset(c.Request.Context(), ruleset); err != nil {
			respondError(c, "adminHandlers.go", "activateRulesetHandler", err)
			return
		}
		if err := models.AppendAudit(c.Request.Context(), config.GetDB(), "RULESET_UPDATE", "match_ruleset", req.Version,
			models.AuditSuccess, map[string]interface{}{"amount_tolerance": req.AmountTolerance, "score_threshold": req.ScoreThreshold}); err != nil {
			respondError(c, "adminHandlers.go", "activateRulesetHandler", err)
			return
		}
		c.JSON(http.StatusCreated, ruleset)
	}
}

func auditTrailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermAuditRead) {
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
		filter := models.AuditFilter{
			ActorLogin: c.Query("actor"),
			Action:     c.Query("action"),
			EntityType: c.Query("entity_type"),
			EntityId:   c.Query("entity_id"),
			Page:       page,
			PageSize:   pageSize,
		}
		if raw := c.Query("from"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
				return
			}
			filter.From = utils.Ptr(t)
		}
		if raw := c.Query("to"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
				return
			}
			filter.To = utils.Ptr(t)
		}

		events, err := models.QueryAuditEvents(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "adminHandlers.go", "auditTrailHandler", err)
			return
		}
		c.JSON(http.StatusOK, events)
	}
}
