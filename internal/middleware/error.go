package middleware

import (
	"escrita_backend/internal/util"
	"escrita_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler 把 handler 通过 c.Error 抛出的错误写成统一的错误响应。
// 非调试模式下内部错误只返回通用信息。
func ErrorHandler(debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr, ok := util.AsAppError(err)
		if !ok {
			appErr = util.NewInternalError("Internal server error", err)
		}

		status := appErr.Status()
		message := appErr.Message
		if status >= http.StatusInternalServerError {
			logger.Log.Error("Request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			if debug {
				message = appErr.Error()
			} else {
				message = "Internal server error"
			}
		}

		util.Error(c, status, message, appErr.Fields...)
	}
}
