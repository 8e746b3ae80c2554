package model

// SessionState enumerates exam session controller states.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStatePermission SessionState = "permission"
	SessionStateActive     SessionState = "active"
	SessionStateSubmitting SessionState = "submitting"
	SessionStateDone       SessionState = "done"
	SessionStateError      SessionState = "error"
)

// SessionSnapshot is a point-in-time view of an exam session.
type SessionSnapshot struct {
	State            SessionState `json:"state"`
	CurrentIndex     int          `json:"current_index"`
	RemainingSeconds int          `json:"remaining_seconds"`
	QuestionCount    int          `json:"question_count"`
	Answers          Ledger       `json:"answers"`
	Current          *Question    `json:"current_question,omitempty"`
	CameraGranted    bool         `json:"camera_granted"`
	RecorderStatus   string       `json:"recorder_status"`
	AlreadyAttempted bool         `json:"already_attempted"`
	TimeExpired      bool         `json:"time_expired"`
	AnswersLocked    bool         `json:"answers_locked"`
	LastError        string       `json:"last_error,omitempty"`
}

// SelectAnswerRequest is the payload for choosing an option, either by index
// or by backend letter.
type SelectAnswerRequest struct {
	OptionIndex *int   `json:"option_index" binding:"required_without=Answer,omitempty,min=0,max=3"`
	Answer      string `json:"ans" binding:"omitempty,option_letter"`
}

// Option resolves the requested option index.
func (r SelectAnswerRequest) Option() int {
	if r.OptionIndex != nil {
		return *r.OptionIndex
	}
	i, _ := OptionIndex(r.Answer)
	return i
}

// GoToRequest is the payload for jumping to a question.
type GoToRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// StartExamRequest optionally carries candidate details for the proctoring context.
type StartExamRequest struct {
	CandidateDetails string `json:"candidate_details" binding:"max=500"`
}

// LoginRequest is the candidate login payload forwarded to the backend.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,max=254"`
	Password string `json:"password" binding:"required,max=128"`
}

// LoginResponse carries the tokens issued by the backend.
type LoginResponse struct {
	Message string `json:"message"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LogoutRequest optionally carries the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}
