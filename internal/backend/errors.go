package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stemsi/exstem-portal/internal/auth"
)

var (
	ErrAlreadyAttempted   = errors.New("exam already attempted")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidResponse    = errors.New("invalid backend response")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// errorBody covers the error shapes the backend produces.
type errorBody struct {
	Detail  string `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseAPIError(status int, body []byte) *APIError {
	var eb errorBody
	msg := ""
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case eb.Detail != "":
			msg = eb.Detail
		case eb.Error != "":
			msg = eb.Error
		case eb.Message != "":
			msg = eb.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = "An unknown error occurred."
	}
	return &APIError{Status: status, Message: msg}
}

// classify maps an APIError from an authenticated call to the portal's
// sentinel errors, keeping the APIError in the chain.
func classify(apiErr *APIError) error {
	lower := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Status == http.StatusUnauthorized,
		strings.HasPrefix(lower, "authentication required"),
		strings.Contains(lower, "credentials were not provided"),
		strings.Contains(lower, "token is invalid or expired"):
		return fmt.Errorf("%w: %w", auth.ErrAuthRequired, apiErr)
	case (apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusBadRequest) &&
		(strings.Contains(lower, "already attempted") || strings.Contains(lower, "already submitted")):
		return fmt.Errorf("%w: %w", ErrAlreadyAttempted, apiErr)
	default:
		return apiErr
	}
}
