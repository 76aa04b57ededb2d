package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"bitbucket.org/mmdatafocus/recon_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createRunRequest struct {
	BusinessDate string `json:"business_date" binding:"required"`
	ScopeFilter  string `json:"scope_filter"`
}

// createRunHandler creates and executes a run synchronously. The conflict
// answer for a second concurrent request comes from the run insert, so
// two clients racing on the same date can never both start.
func createRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var req createRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_date is required"})
			return
		}

		run, err := workflow.CreateAndExecuteMatchRun(c.Request.Context(), req.BusinessDate, req.ScopeFilter)
		if err != nil {
			// A failed run still reports its row so the client can
			// inspect the failure reason.
			if run != nil {
				status, ok := kindToHTTPStatus[utils.KindOf(err)]
				if !ok {
					status = http.StatusInternalServerError
				}
				c.JSON(status, gin.H{"error": err.Error(), "kind": string(utils.KindOf(err)), "run": run})
				return
			}
			respondError(c, "runHandlers.go", "createRunHandler", err)
			return
		}
		c.JSON(http.StatusCreated, run)
	}
}

func listRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		runs, err := models.ListRuns(c.Request.Context(), c.Query("business_date"), limit)
		if err != nil {
			respondError(c, "runHandlers.go", "listRunsHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func getRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		run, err := models.GetRun(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, "runHandlers.go", "getRunHandler", err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func latestRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		businessDate := c.Query("business_date")
		if businessDate == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_date is required"})
			return
		}
		run, err := models.LatestRunForDate(c.Request.Context(), businessDate)
		if err != nil {
			respondError(c, "runHandlers.go", "latestRunHandler", err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func runSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		runId := c.Param("id")
		if _, err := models.GetRun(c.Request.Context(), runId); err != nil {
			respondError(c, "runHandlers.go", "runSummaryHandler", err)
			return
		}
		summary, err := models.GetRunSummary(c.Request.Context(), runId)
		if err != nil {
			respondError(c, "runHandlers.go", "runSummaryHandler", err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func runResultsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		runId := c.Param("id")
		if _, err := models.GetRun(c.Request.Context(), runId); err != nil {
			respondError(c, "runHandlers.go", "runResultsHandler", err)
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
		filter := models.ResultFilter{
			Status:   c.Query("status"),
			Search:   c.Query("q"),
			Currency: c.Query("currency"),
			SortBy:   c.Query("sort_by"),
			SortDir:  c.Query("sort_dir"),
			Page:     page,
			PageSize: pageSize,
		}
		if raw := c.Query("amount_min"); raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "amount_min is not a decimal"})
				return
			}
			filter.AmountMin = &v
		}
		if raw := c.Query("amount_max"); raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "amount_max is not a decimal"})
				return
			}
			filter.AmountMax = &v
		}

		results, err := models.QueryResultRows(c.Request.Context(), runId, filter)
		if err != nil {
			respondError(c, "runHandlers.go", "runResultsHandler", err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func resultDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		detail, err := models.GetResultDetail(c.Request.Context(), c.Param("rowId"))
		if err != nil {
			respondError(c, "runHandlers.go", "resultDetailHandler", err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func runDiagnosticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		diag, err := workflow.DiagnoseRun(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, "runHandlers.go", "runDiagnosticsHandler", err)
			return
		}
		c.JSON(http.StatusOK, diag)
	}
}

func resultCandidatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		misses, err := workflow.ExplainUnmatchedRow(c.Request.Context(), c.Param("rowId"))
		if err != nil {
			respondError(c, "runHandlers.go", "resultCandidatesHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"candidates": misses})
	}
}

func analyticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermAnalyticsRead) {
			return
		}
		businessDate := c.Query("business_date")
		if businessDate == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_date is required"})
			return
		}
		analytics, err := workflow.GetReconAnalytics(c.Request.Context(), businessDate)
		if err != nil {
			respondError(c, "runHandlers.go", "analyticsHandler", err)
			return
		}
		c.JSON(http.StatusOK, analytics)
	}
}
