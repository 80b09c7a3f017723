package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campusconnect/internal/apperr"
)

const claimsKey = "claims"

// Bearer enforces HS256 bearer tokens and stores the claims on the context.
// When allowQuery is set the token may also come from ?access_token=, for
// EventSource clients that cannot send headers.
func Bearer(signer *Signer, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""
		authz := c.GetHeader("Authorization")
		if len(authz) > len("bearer ") && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			tokenStr = strings.TrimSpace(authz[len("bearer "):])
		} else if allowQuery {
			tokenStr = c.Query("access_token")
		}
		claims, err := signer.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.Message(err)})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Require aborts with 403 unless the caller satisfies p.
func Require(g *Guard, p Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if err := g.Check(c.Request.Context(), claims, p); err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err)})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Bearer.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
