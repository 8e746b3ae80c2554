package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/session"
)

const (
	// ContextKeyController is the Gin context key for the candidate's exam controller.
	ContextKeyController = "exam_controller"
	// ContextKeyToken is the Gin context key for the raw bearer token.
	ContextKeyToken = "bearer_token"

	// HeaderRefreshToken optionally carries the refresh token next to the bearer.
	HeaderRefreshToken = "X-Refresh-Token"
)

// RequireBearer extracts the candidate's bearer token from the Authorization
// header or, for WebSocket upgrades, the ?token= query parameter.
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		c.Set(ContextKeyToken, token)
		c.Next()
	}
}

// RequireExamSession binds the bearer token to the candidate's exam
// controller. Must run after RequireBearer.
func RequireExamSession(svc *service.PortalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl, err := svc.Resolve(c.GetString(ContextKeyToken), c.GetHeader(HeaderRefreshToken))
		switch {
		case errors.Is(err, service.ErrSessionBusy):
			response.AbortFail(c, http.StatusConflict, response.ErrSessionBusy)
			return
		case err != nil:
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionExpired)
			return
		}
		c.Set(ContextKeyController, ctrl)
		c.Next()
	}
}

// GetController retrieves the exam controller from the Gin context.
func GetController(c *gin.Context) *session.Controller {
	val, exists := c.Get(ContextKeyController)
	if !exists {
		return nil
	}
	ctrl, ok := val.(*session.Controller)
	if !ok {
		return nil
	}
	return ctrl
}

// BearerToken returns the token from the Authorization header, falling back
// to the token query parameter.
func BearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}
