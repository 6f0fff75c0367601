// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"catalog-smart-go/pkg/token"
)

const (
	// ContextKeyClaims 是租户令牌解析结果在 Gin 上下文中的键。
	ContextKeyClaims = "claims"
	// ContextKeyTenant 是租户标识在 Gin 上下文中的键。
	ContextKeyTenant = "tenant"
)

// TenantAuthMiddleware 创建一个 Gin 中间件，用于摄取接口的租户 JWT 认证。
// 它从请求头中提取 token，验证有效性，并把租户声明存入 Gin 的上下文中，
// 供后续处理函数构造上传请求里的用户与租户信息。
func TenantAuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从 Authorization 请求头中获取 token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供，提取出 token 本身
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的授权头格式"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}

		// 将租户声明存储在 context 中，供后续处理函数使用
		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyTenant, claims.Tenant)

		c.Next()
	}
}
