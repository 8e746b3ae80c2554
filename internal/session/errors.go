package session

import "errors"

var (
	ErrInvalidState     = errors.New("operation not allowed in the current exam state")
	ErrNoQuestions      = errors.New("no questions available for this exam")
	ErrOptionOutOfRange = errors.New("option index out of range")
	ErrIndexOutOfRange  = errors.New("question index out of range")
	ErrTimeExpired      = errors.New("exam time has expired; only submission is allowed")
	ErrAnswersLocked    = errors.New("answers are locked after the recording was finalized; only submission is allowed")
	ErrMissingRecording = errors.New("exam recording is missing")
	ErrDeviceFailure    = errors.New("camera or microphone failure")
	ErrSessionClosed    = errors.New("exam session was closed")
)
