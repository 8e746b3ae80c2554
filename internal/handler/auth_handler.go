package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// AuthHandler proxies candidate login and logout to the quiz backend.
type AuthHandler struct {
	portal *service.PortalService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(portal *service.PortalService) *AuthHandler {
	return &AuthHandler{portal: portal}
}

// Login godoc
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.portal.Login(c.Request.Context(), req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Logout godoc
// POST /api/v1/auth/logout
// Closes the candidate's exam session and revokes the refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req model.LogoutRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}
	refresh := req.RefreshToken
	if refresh == "" {
		refresh = c.GetHeader(middleware.HeaderRefreshToken)
	}

	if err := h.portal.Logout(c.Request.Context(), c.GetString(middleware.ContextKeyToken), refresh); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Logout successful."})
}
