package middlewares

import "github.com/gin-gonic/gin"

// abort writes the standard failure envelope and stops the chain.
func abort(c *gin.Context, status int, code, message string, extra gin.H) {
	body := gin.H{
		"success": false,
		"message": message,
		"code":    code,
	}
	if id, ok := c.Get(CtxRequestID); ok {
		body["requestId"] = id
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
