package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jobboard/internal/auth"
	"jobboard/internal/database"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func claimsFromRequest(c *gin.Context, authService *auth.AuthService) (*auth.TokenClaims, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, false
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, false
	}

	rawToken := parts[1]
	if strings.TrimSpace(rawToken) == "" {
		return nil, false
	}

	claims, err := authService.ValidateToken(rawToken)
	if err != nil || claims.TokenType != "access" {
		return nil, false
	}
	return claims, true
}

// AuthMiddleware 校验求职者访问令牌并将 userID 注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromRequest(c, authService)
		if !ok || claims.UserType != database.UserTypeUser {
			abortUnauthorized(c)
			return
		}

		c.Set("userID", claims.UserID)
		c.Next()
	}
}

// CompanyAuthMiddleware 校验企业账号访问令牌并将 companyUserID 注入上下文。
func CompanyAuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromRequest(c, authService)
		if !ok || claims.UserType != database.UserTypeCompany {
			abortUnauthorized(c)
			return
		}

		c.Set("companyUserID", claims.UserID)
		c.Next()
	}
}

// OptionalAuthMiddleware 尝试解析求职者令牌，失败时继续匿名访问。
func OptionalAuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := claimsFromRequest(c, authService); ok && claims.UserType == database.UserTypeUser {
			c.Set("userID", claims.UserID)
		}
		c.Next()
	}
}
