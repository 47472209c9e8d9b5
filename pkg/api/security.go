package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const forwardedProtoHeader = "X-Forwarded-Proto"

// HSTS adds Strict-Transport-Security to every response.
func HSTS(maxAge time.Duration) gin.HandlerFunc {
	value := fmt.Sprintf("max-age=%d", int64(maxAge/time.Second))
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", value)
		c.Next()
	}
}

// HTTPSRedirect sends plain HTTP requests to the https scheme with 307 so the
// method and body are preserved.
func HTTPSRedirect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSecure(c.Request) {
			c.Next()
			return
		}
		target := "https://" + c.Request.Host + c.Request.URL.RequestURI()
		c.Redirect(http.StatusTemporaryRedirect, target)
		c.Abort()
	}
}

func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get(forwardedProtoHeader), "https")
}
