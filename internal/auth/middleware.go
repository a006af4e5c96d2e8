package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/behzadon/podium/internal/gateway"
	"github.com/behzadon/podium/internal/host"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ContextUserID = "user_id"

// AuthMiddleware validates the bearer session and forwards it: the raw token
// to the backend gateway and the signer to the host composer.
func AuthMiddleware(validator TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "authorization header is required",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "invalid authorization header format",
			})
			c.Abort()
			return
		}

		token := parts[1]
		claims, err := validator.ValidateToken(token)
		if err != nil {
			logger.Debug("token validation failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			status := http.StatusUnauthorized
			if errors.Is(err, ErrExpiredToken) {
				status = http.StatusForbidden
			}
			c.JSON(status, gin.H{
				"status":  "error",
				"message": err.Error(),
			})
			c.Abort()
			return
		}

		ctx := gateway.WithToken(c.Request.Context(), token)
		if claims.Signer != "" {
			ctx = host.WithSigner(ctx, claims.Signer)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(ContextUserID, claims.UserID)
		c.Next()
	}
}
