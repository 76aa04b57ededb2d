package middlewares

import (
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the token header into an actor identity.
// Requests without a token pass through anonymous; handlers decide what
// needs auth. A token that no longer resolves is rejected here.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Request = c.Request.WithContext(
				utils.SetSourceIpInContext(c.Request.Context(), c.ClientIP()))
			c.Next()
			return
		}

		login, err := resolveTokenLogin(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		var user models.User
		cached, err := config.GetRedisObject("User:"+login, &user)
		if err != nil || !cached {
			fresh, dbErr := models.GetUserByLogin(c.Request.Context(), login)
			if dbErr != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			user = *fresh
			_ = config.SetRedisObject("User:"+login, &user, utils.GetCacheLifespan())
		}
		if user.Status != models.UserStatusActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetActorLoginInContext(ctx, user.Login)
		ctx = utils.SetActorRolesInContext(ctx, user.RoleList())
		ctx = utils.SetSourceIpInContext(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// resolveTokenLogin maps a presented token to a login. When redis is up
// the session store is authoritative: logout deletes the key, so a miss
// there is a dead session. Without redis the signed claims are the
// session, and the token lifespan is the only expiry.
func resolveTokenLogin(token string) (string, error) {
	if config.GetRedisDB() == nil {
		parsed, err := utils.JwtValidate(token)
		if err != nil {
			return "", err
		}
		claims, ok := parsed.Claims.(*utils.JwtCustomClaim)
		if !ok || !parsed.Valid {
			return "", errors.New("token claims are not usable")
		}
		return claims.Login, nil
	}

	login, exists, err := config.GetRedisValue("Token:" + token)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", errors.New("session not found")
	}
	return login, nil
}
