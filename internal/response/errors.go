package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrSessionExpired     ErrCode = "SESSION_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrOutOfRange     ErrCode = "OUT_OF_RANGE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrInvalidState     ErrCode = "INVALID_STATE"
	ErrAlreadyAttempted ErrCode = "ALREADY_ATTEMPTED"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrTimeExpired      ErrCode = "TIME_EXPIRED"
	ErrAnswersLocked    ErrCode = "ANSWERS_LOCKED"
	ErrSessionBusy      ErrCode = "SESSION_BUSY"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrMediaPermission  ErrCode = "MEDIA_PERMISSION_DENIED"
	ErrDeviceFailure    ErrCode = "DEVICE_FAILURE"
	ErrMissingRecording ErrCode = "MISSING_RECORDING"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Invalid credentials."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrSessionExpired:
		return "Your session has expired. Please log in again."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrOutOfRange:
		return "The requested question or option does not exist."

	case ErrNotFound:
		return "Resource not found."

	case ErrInvalidState:
		return "This action is not allowed in the current exam state."
	case ErrAlreadyAttempted:
		return "You already attempted the exam."
	case ErrNoQuestions:
		return "The exam has no questions."
	case ErrTimeExpired:
		return "Exam time has expired. Only submission is allowed."
	case ErrAnswersLocked:
		return "Answers are locked because the recording has ended. Please submit again."
	case ErrSessionBusy:
		return "Another candidate's exam is in progress on this device."

	case ErrMediaPermission:
		return "Camera and microphone access is required to start the exam."
	case ErrDeviceFailure:
		return "The recording device failed. Please contact the invigilator."
	case ErrMissingRecording:
		return "The recording was not captured. Recording has restarted; please submit again."

	case ErrBackendUnavailable:
		return "The exam server could not process the request. Please try again."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
