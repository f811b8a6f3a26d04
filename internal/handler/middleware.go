package handler

import (
	"log"
	"net/http"
	"time"

	"investsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware 访问日志中间件
// 资金类接口的排障基本靠这份日志对时间线，慢请求单独标记
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		fullPath := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			fullPath = fullPath + "?" + raw
		}

		slow := ""
		if latency > time.Second {
			slow = " [慢请求]"
		}

		log.Printf("[Access] %s %s -> %d, 耗时=%v, ip=%s%s",
			c.Request.Method,
			fullPath,
			c.Writer.Status(),
			latency,
			c.ClientIP(),
			slow,
		)
	}
}

// RecoveryMiddleware panic 兜底
// 记账链路 panic 时事务已随调用栈回滚，这里只负责别把进程带崩
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Recovery] %s %s panic: %v", c.Request.Method, c.Request.URL.Path, r)
				if !c.Writer.Written() {
					response.ServerError(c, "服务器内部错误")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
