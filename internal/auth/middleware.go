package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const addressKey = "address"

// AuthMiddleware validates JWT tokens and protects routes
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required. Expected: Bearer <token>",
			})
			return
		}

		claims, err := ValidateToken(token)
		if err != nil {
			log.Debug().Err(err).Str("path", c.FullPath()).Msg("[Auth] token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(addressKey, claims.Address)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, found && token != ""
}

// GetAddress retrieves the caller identity from the context
func GetAddress(c *gin.Context) (string, bool) {
	addr, exists := c.Get(addressKey)
	if !exists {
		return "", false
	}

	address, ok := addr.(string)
	return address, ok && address != ""
}
