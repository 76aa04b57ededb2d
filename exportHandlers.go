package main

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/models/reports"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"github.com/gin-gonic/gin"
)

func runWorkbookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		f, fileName, err := reports.BuildRunWorkbook(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, "exportHandlers.go", "runWorkbookHandler", err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
		if err := f.Write(c.Writer); err != nil {
			respondError(c, "exportHandlers.go", "runWorkbookHandler", err)
		}
	}
}

func unmatchedCsvHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermMatchRead) {
			return
		}
		side, ok := models.ParseSourceSystem(strings.ToUpper(c.DefaultQuery("side", "WAY4")))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "side must be WAY4 or VISA"})
			return
		}
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="unmatched_`+strings.ToLower(string(side))+`.csv"`)
		if err := reports.WriteUnmatchedCsv(c.Request.Context(), c.Param("id"), side, c.Writer); err != nil {
			respondError(c, "exportHandlers.go", "unmatchedCsvHandler", err)
		}
	}
}

func openExceptionsCsvHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermExceptionsRead) {
			return
		}
		businessDate := c.Query("business_date")
		if businessDate == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_date is required"})
			return
		}
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="open_exceptions_`+businessDate+`.csv"`)
		if err := reports.WriteOpenExceptionsCsv(c.Request.Context(), businessDate, c.Writer); err != nil {
			respondError(c, "exportHandlers.go", "openExceptionsCsvHandler", err)
		}
	}
}
