package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/workflow"
	"github.com/gin-gonic/gin"
)

func listCasesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermExceptionsRead) {
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
		filter := models.CaseFilter{
			BusinessDate: c.Query("business_date"),
			RunId:        c.Query("run_id"),
			Status:       c.Query("status"),
			Category:     c.Query("category"),
			Severity:     c.Query("severity"),
			AssignedTo:   c.Query("assigned_to"),
			Search:       c.Query("q"),
			Page:         page,
			PageSize:     pageSize,
		}
		cases, err := models.QueryExceptionCases(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "caseHandlers.go", "listCasesHandler", err)
			return
		}
		c.JSON(http.StatusOK, cases)
	}
}

func getCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireReadPermission(c, rbac.PermExceptionsRead) {
			return
		}
		detail, err := workflow.GetCaseWithHistory(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, "caseHandlers.go", "getCaseHandler", err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

type assignCaseRequest struct {
	Assignee string `json:"assignee"`
}

func assignCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var req assignCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		updated, err := workflow.AssignCase(c.Request.Context(), c.Param("id"), req.Assignee)
		if err != nil {
			respondError(c, "caseHandlers.go", "assignCaseHandler", err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

type commentCaseRequest struct {
	Comment string `json:"comment" binding:"required"`
}

func commentCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var req commentCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "comment is required"})
			return
		}
		action, err := workflow.CommentCase(c.Request.Context(), c.Param("id"), req.Comment)
		if err != nil {
			respondError(c, "caseHandlers.go", "commentCaseHandler", err)
			return
		}
		c.JSON(http.StatusCreated, action)
	}
}

type caseStatusRequest struct {
	ToStatus string `json:"to_status" binding:"required"`
}

func caseStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var req caseStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to_status is required"})
			return
		}
		updated, err := workflow.ChangeCaseStatus(c.Request.Context(), c.Param("id"), req.ToStatus)
		if err != nil {
			respondError(c, "caseHandlers.go", "caseStatusHandler", err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

type closeCaseRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

func closeCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		var req closeCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolution is required"})
			return
		}
		updated, err := workflow.CloseCase(c.Request.Context(), c.Param("id"), req.Resolution)
		if err != nil {
			respondError(c, "caseHandlers.go", "closeCaseHandler", err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}
