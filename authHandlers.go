package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/gin-gonic/gin"
)

func sessionLifespan() time.Duration {
	if raw := os.Getenv("SESSION_LIFESPAN_HOURS"); raw != "" {
		if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
			return time.Duration(hours) * time.Hour
		}
	}
	return 12 * time.Hour
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// loginHandler checks credentials and issues a session token backed by
// redis. The token doubles as a JWT so downstream tooling can inspect
// claims; the redis entry is what actually keeps the session alive.
func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
			return
		}

		user, err := models.GetUserByLogin(c.Request.Context(), req.Login)
		if err != nil || user.Status != models.UserStatusActive ||
			utils.ComparePassword(user.PasswordHash, req.Password) != nil {
			// Same response for unknown login and wrong password.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := utils.JwtGenerate(user.Login, user.RoleList())
		if err != nil {
			respondError(c, "authHandlers.go", "loginHandler", err)
			return
		}
		if err := config.SetRedisValue("Token:"+token, user.Login, sessionLifespan()); err != nil {
			respondError(c, "authHandlers.go", "loginHandler", err)
			return
		}
		_ = config.SetRedisObject("User:"+user.Login, user, utils.GetCacheLifespan())

		c.JSON(http.StatusOK, gin.H{
			"token":        token,
			"login":        user.Login,
			"display_name": user.DisplayName,
			"roles":        user.RoleList(),
		})
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		token, _ := utils.GetTokenFromContext(c.Request.Context())
		if err := config.RemoveRedisKey("Token:" + token); err != nil {
			respondError(c, "authHandlers.go", "logoutHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireSession(c) {
			return
		}
		users, err := models.ListAssignableUsers(c.Request.Context())
		if err != nil {
			respondError(c, "authHandlers.go", "listUsersHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	}
}
