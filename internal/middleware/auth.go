package middleware

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.werewolf/internal/auth"
	"sudooom.im.werewolf/pkg/response"
)

const (
	ctxUserID   = "user_id"
	ctxDeviceID = "device_id"
)

// TokenAuth 认证中间件
// 浏览器 websocket 无法设置 header，token 也可以放在查询参数中
// allowAnonymous 为 true 时接受 userId 查询参数，仅用于本地调试
func TokenAuth(verifier *auth.Verifier, allowAnonymous bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			if anon := c.Query("userId"); allowAnonymous && anon != "" {
				c.Set(ctxUserID, anon)
				c.Next()
				return
			}
			response.Unauthorized(c, nil)
			c.Abort()
			return
		}

		id, err := verifier.Verify(token)
		if err != nil {
			response.Unauthorized(c, err)
			c.Abort()
			return
		}

		c.Set(ctxUserID, id.UserID)
		c.Set(ctxDeviceID, id.DeviceID)
		c.Next()
	}
}

// GetUserID 从 context 获取 user_id
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetDeviceID 从 context 获取 device_id
func GetDeviceID(c *gin.Context) string {
	return c.GetString(ctxDeviceID)
}
