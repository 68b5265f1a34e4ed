package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/auth"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// RequireValidToken rejects shell requests once the agent's student token
// is missing or expired, so the shell can send the student back to login.
func RequireValidToken(authCtx *auth.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authCtx == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if err := authCtx.Valid(); err != nil {
			code := response.ErrTokenInvalid
			if errors.Is(err, auth.ErrTokenExpired) {
				code = response.ErrTokenExpired
			}
			response.AbortFail(c, http.StatusUnauthorized, code)
			return
		}
		c.Next()
	}
}
