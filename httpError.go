package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/gin-gonic/gin"
)

var kindToHTTPStatus = map[utils.ErrorKind]int{
	utils.ErrKindNotFound:          http.StatusNotFound,
	utils.ErrKindConflict:          http.StatusConflict,
	utils.ErrKindInvalidTransition: http.StatusUnprocessableEntity,
	utils.ErrKindAuthDenied:        http.StatusForbidden,
	utils.ErrKindValidation:        http.StatusBadRequest,
	utils.ErrKindTimeout:           http.StatusGatewayTimeout,
	utils.ErrKindInternal:          http.StatusInternalServerError,
}

// respondError translates domain error kinds into HTTP statuses. Anything
// unclassified is an internal error and its detail stays in the log, not
// the response.
func respondError(c *gin.Context, module, funcName string, err error) {
	kind := utils.KindOf(err)
	status, ok := kindToHTTPStatus[kind]
	if !ok || kind == utils.ErrKindInternal {
		config.LogError(config.GetLogger(), module, funcName, "request failed", c.Request.URL.Path, err)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "kind": string(utils.ErrKindInternal), "correlation_id": cid})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(kind)})
}

// requireSession rejects anonymous requests. State-changing permissions
// are checked deeper, in the workflow; read permissions are checked here
// at the route level.
func requireSession(c *gin.Context) bool {
	if login, ok := utils.GetActorLoginFromContext(c.Request.Context()); !ok || login == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		c.Abort()
		return false
	}
	return true
}

func requireReadPermission(c *gin.Context, permission string) bool {
	if !requireSession(c) {
		return false
	}
	roles, _ := utils.GetActorRolesFromContext(c.Request.Context())
	if !rbac.HasPermission(roles, permission) {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing permission " + permission, "kind": string(utils.ErrKindAuthDenied)})
		c.Abort()
		return false
	}
	return true
}
