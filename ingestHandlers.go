package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/workflow"
	"github.com/gin-gonic/gin"
)

func ingestBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var input workflow.IngestBatchInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		result, rowErrors, err := workflow.IngestFeedBatch(c.Request.Context(), input)
		if err != nil {
			if len(rowErrors) > 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "record_errors": rowErrors})
				return
			}
			respondError(c, "ingestHandlers.go", "ingestBatchHandler", err)
			return
		}

		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		if len(rowErrors) > 0 {
			c.JSON(status, gin.H{"batch": result.Batch, "duplicate": result.Duplicate,
				"accepted": result.Accepted, "record_errors": rowErrors})
			return
		}
		c.JSON(status, result)
	}
}

func listBatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermIngestRead) {
			return
		}
		batches, err := workflow.ListIngestBatches(c.Request.Context(), c.Query("business_date"))
		if err != nil {
			respondError(c, "ingestHandlers.go", "listBatchesHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"batches": batches})
	}
}

// sourceBalanceHandler reports both sides' record volume for a date so
// operations can see whether the feeds look complete before running.
func sourceBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermIngestRead) {
			return
		}
		businessDate := c.Param("date")
		balance, err := models.GetSourceBalance(c.Request.Context(), businessDate)
		if err != nil {
			respondError(c, "ingestHandlers.go", "sourceBalanceHandler", err)
			return
		}
		c.JSON(http.StatusOK, balance)
	}
}
