package httpmiddleware

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var hardeningHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
}

// SecurityHeaders sets the hardening headers on every response. hsts adds
// Strict-Transport-Security and should only be set behind TLS.
func SecurityHeaders(hsts bool) gin.HandlerFunc {
	headers := hardeningHeaders
	if hsts {
		headers = append(headers[:len(headers):len(headers)], [2]string{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"})
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range headers {
			h.Set(kv[0], kv[1])
		}
		c.Next()
	}
}

// CORS allows the given browser origins; an empty list allows any origin without credentials.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// Timeout bounds the request context. Streaming routes should not use it.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
