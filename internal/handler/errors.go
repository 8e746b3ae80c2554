package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-portal/internal/auth"
	"github.com/stemsi/exstem-portal/internal/backend"
	"github.com/stemsi/exstem-portal/internal/capture"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/session"
)

// errorStatus maps domain errors to an HTTP status and response code.
func errorStatus(err error) (int, response.ErrCode) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		return http.StatusUnauthorized, response.ErrSessionExpired
	case errors.Is(err, backend.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials
	case errors.Is(err, backend.ErrAlreadyAttempted):
		return http.StatusForbidden, response.ErrAlreadyAttempted
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden, response.ErrMediaPermission
	case errors.Is(err, session.ErrMissingRecording) && !errors.Is(err, session.ErrDeviceFailure):
		return http.StatusConflict, response.ErrMissingRecording
	case errors.Is(err, session.ErrDeviceFailure), errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable, response.ErrDeviceFailure
	case errors.Is(err, session.ErrNoQuestions):
		return http.StatusNotFound, response.ErrNoQuestions
	case errors.Is(err, session.ErrOptionOutOfRange), errors.Is(err, session.ErrIndexOutOfRange):
		return http.StatusUnprocessableEntity, response.ErrOutOfRange
	case errors.Is(err, session.ErrTimeExpired):
		return http.StatusConflict, response.ErrTimeExpired
	case errors.Is(err, session.ErrAnswersLocked):
		return http.StatusConflict, response.ErrAnswersLocked
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict, response.ErrInvalidState
	case errors.Is(err, service.ErrSessionBusy):
		return http.StatusConflict, response.ErrSessionBusy
	case errors.Is(err, repository.ErrReportNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, response.ErrBackendUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWith writes the envelope for err. Backend messages are passed through
// so the candidate sees what the exam server said.
func failWith(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		response.Logger(c).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	var apiErr *backend.APIError
	if code == response.ErrBackendUnavailable && errors.As(err, &apiErr) {
		response.FailWithMessage(c, status, code, apiErr.Message)
		return
	}
	response.Fail(c, status, code)
}
