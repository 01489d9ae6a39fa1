package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/preplab/proctord/internal/response"
	"github.com/preplab/proctord/internal/service"
)

// CheckSingleDeviceSession validates the JWT's JTI against the active
// login session in Redis. A proctored student may hold one session at a
// time: a mismatch means the session was logged out or superseded.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		// Only enforce for student tokens.
		if claims.TokenType != service.TokenTypeStudent {
			c.Next()
			return
		}

		if err := authService.ValidateStudentSession(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
