package middleware

import (
	"net/http"
	"strings"

	"todonest/internal/model"
	"todonest/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// UserResolver 将令牌 subject（邮箱）解析为用户。
type UserResolver interface {
	FindByEmail(email string) (*model.User, error)
}

// AuthMiddleware 校验 Bearer access 令牌并将当前用户写入上下文。
//
// 任何校验失败（缺失头、格式错误、签名/过期/kind 不符、用户不存在）
// 均返回 401，不区分具体原因。
func AuthMiddleware(issuer *token.Issuer, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			c.Abort()
			return
		}

		email, err := issuer.Verify(parts[1], token.KindAccess)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		user, err := users.FindByEmail(email)
		if err != nil || user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("userID", user.ID)
		c.Set("user", user)
		c.Next()
	}
}
