package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-attempt/internal/response"
)

// RequireOpsToken guards operator endpoints with a static bearer token.
// An empty token disables the endpoints entirely.
func RequireOpsToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.AbortFail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		got, err := extractToken(c)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		c.Next()
	}
}
