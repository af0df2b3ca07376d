package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-credential-service/pkg/response"
)

const CtxRealIPKey = "real_ip"

// RealIP sets the client IP into Gin context (key: "real_ip").
// Priority:
// 1) CF-Connecting-IP
// 2) X-Forwarded-For (left-most)
// 3) c.ClientIP()
func RealIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CtxRealIPKey, realIP(c))
		c.Next()
	}
}

func realIP(c *gin.Context) string {
	if cf := strings.TrimSpace(c.GetHeader("CF-Connecting-IP")); cf != "" {
		if ip := net.ParseIP(cf); ip != nil {
			return ip.String()
		}
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	return c.ClientIP()
}

// ClientIP returns the address resolved by RealIP, or Gin's own guess when
// RealIP did not run.
func ClientIP(c *gin.Context) string {
	if ip := c.GetString(CtxRealIPKey); ip != "" {
		return ip
	}
	return c.ClientIP()
}

// PrivateNetworkOnly rejects callers outside loopback and private ranges.
func PrivateNetworkOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(ClientIP(c))
		if ip == nil || !(ip.IsLoopback() || ip.IsPrivate()) {
			response.Abort(c, http.StatusForbidden, "forbidden", response.ErrorBody{Code: "FORBIDDEN"})
			return
		}
		c.Next()
	}
}
