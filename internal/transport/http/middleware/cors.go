package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Bearer tokens only. Credentialed cross-origin requests are never allowed.
var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ",")
	corsHeaders = strings.Join([]string{"Authorization", "Content-Type", requestIDHeader, TraceIDHeader}, ",")
)

// CORS lets the configured browser origins call the auth endpoints.
// "*" allows any origin. Preflights from other origins are refused with 403.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		c.Header("Vary", "Origin")
		_, ok := allowed[origin]
		permitted := allowAll || ok

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			if !permitted {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			setAllowOrigin(c, origin, allowAll)
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsHeaders)
			c.Header("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if permitted {
			setAllowOrigin(c, origin, allowAll)
			c.Header("Access-Control-Expose-Headers", TraceIDHeader+",Retry-After")
		}
		c.Next()
	}
}

func setAllowOrigin(c *gin.Context, origin string, allowAll bool) {
	if allowAll {
		c.Header("Access-Control-Allow-Origin", "*")
		return
	}
	c.Header("Access-Control-Allow-Origin", origin)
}
