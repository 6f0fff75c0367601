// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/token"
)

// AuthHandler 负责处理认证相关的 API 请求，例如签发租户访问令牌。
type AuthHandler struct {
	jwtManager *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

// IssueTokenRequest 定义了签发令牌 API 的请求体结构。
type IssueTokenRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Username string `json:"username" binding:"required"`
	Tenant   string `json:"tenant" binding:"required"`
}

// IssueToken 为指定的用户与租户签发一个摄取接口访问令牌。
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("IssueToken: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：userId、username、tenant 不能为空"})
		return
	}

	accessToken, err := h.jwtManager.GenerateToken(req.UserID, req.Username, req.Tenant, 24*time.Hour)
	if err != nil {
		log.Errorf("IssueToken: Failed to generate token, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签发令牌失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"token": accessToken,
		},
	})
}
