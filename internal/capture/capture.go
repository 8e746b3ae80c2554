// Package capture records the candidate's camera/microphone during an exam
// and turns the recording into a transportable data URI.
package capture

import (
	"context"
	"errors"
	"io"
)

// Status is the observable recorder lifecycle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

var (
	ErrAlreadyRecording  = errors.New("already recording")
	ErrRecorderSetup     = errors.New("recorder setup failed")
	ErrPermissionDenied  = errors.New("camera/microphone permission denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrStreamInactive    = errors.New("media stream is not active")
)

// SetupError reports that the encoder could not be initialized.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return "recorder setup failed: " + e.Err.Error()
}

func (e *SetupError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRecorderSetup) match any SetupError.
func (e *SetupError) Is(target error) bool { return target == ErrRecorderSetup }

// Stream is an acquired camera/microphone handle.
type Stream interface {
	// Record starts encoding and returns the encoded byte stream. Closing the
	// reader finalizes the encoding; remaining bytes are still delivered
	// before EOF.
	Record() (io.ReadCloser, error)
	MimeType() string
	Active() bool
	// Stop releases the hardware. Safe to call more than once.
	Stop() error
}

// Device acquires media streams.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}
