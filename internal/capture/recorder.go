package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

const defaultChunkSize = 32 * 1024

// Recorder accumulates the encoded output of one Stream and returns it as a
// single data URI when stopped.
type Recorder struct {
	log       zerolog.Logger
	chunkSize int

	mu       sync.Mutex
	status   Status
	err      error
	stream   Stream
	src      io.ReadCloser
	done     chan struct{}
	data     []byte
	stopping bool
	onStatus []func(Status)
}

// NewRecorder returns an idle recorder.
func NewRecorder(log zerolog.Logger) *Recorder {
	return &Recorder{
		log:       log.With().Str("component", "recorder").Logger(),
		chunkSize: defaultChunkSize,
		status:    StatusIdle,
	}
}

// OnStatus registers fn to be called after every status change.
func (r *Recorder) OnStatus(fn func(Status)) {
	r.mu.Lock()
	r.onStatus = append(r.onStatus, fn)
	r.mu.Unlock()
}

func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the error that moved the recorder to StatusError, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Start begins recording stream.
func (r *Recorder) Start(stream Stream) error {
	r.mu.Lock()
	if r.status == StatusRecording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}

	var src io.ReadCloser
	var err error
	if stream == nil || !stream.Active() {
		err = ErrStreamInactive
	} else {
		src, err = stream.Record()
	}
	if err != nil {
		setupErr := &SetupError{Err: err}
		r.status = StatusError
		r.err = setupErr
		r.mu.Unlock()
		r.log.Error().Err(err).Msg("recorder setup failed")
		r.notify(StatusError)
		return setupErr
	}

	done := make(chan struct{})
	r.stream = stream
	r.src = src
	r.done = done
	r.data = nil
	r.err = nil
	r.stopping = false
	r.status = StatusRecording
	r.mu.Unlock()

	go r.collect(src, done)

	r.log.Debug().Str("mime", stream.MimeType()).Msg("recording started")
	r.notify(StatusRecording)
	return nil
}

func (r *Recorder) collect(src io.Reader, done chan struct{}) {
	defer close(done)

	var buf bytes.Buffer
	chunk := make([]byte, r.chunkSize)
	for {
		n, err := src.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == nil {
			continue
		}

		r.mu.Lock()
		r.data = buf.Bytes()
		stopping := r.stopping
		r.mu.Unlock()

		if errors.Is(err, io.EOF) || stopping {
			return
		}
		r.fail(err)
		return
	}
}

func (r *Recorder) fail(err error) {
	r.mu.Lock()
	if r.status != StatusRecording {
		r.mu.Unlock()
		return
	}
	r.status = StatusError
	r.err = fmt.Errorf("recording: %w", err)
	r.mu.Unlock()

	r.log.Error().Err(err).Msg("recording failed")
	r.notify(StatusError)
}

// Stop finalizes the recording and returns it as a data URI. It returns ""
// without error when no recording is active or nothing was captured.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.status != StatusRecording {
		r.mu.Unlock()
		return "", nil
	}
	r.stopping = true
	src, done, mime := r.src, r.done, r.stream.MimeType()
	r.mu.Unlock()

	if err := src.Close(); err != nil {
		r.log.Warn().Err(err).Msg("closing encoder")
	}

	select {
	case <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r.mu.Lock()
	data := r.data
	r.data = nil
	r.src = nil
	r.stream = nil
	r.status = StatusStopped
	r.mu.Unlock()
	r.notify(StatusStopped)

	r.log.Debug().Int("bytes", len(data)).Msg("recording stopped")
	if len(data) == 0 {
		return "", nil
	}
	return EncodeDataURI(mime, data), nil
}

// Discard stops any active recording and drops what was captured.
func (r *Recorder) Discard() {
	r.mu.Lock()
	if r.status != StatusRecording {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	src, done := r.src, r.done
	r.mu.Unlock()

	_ = src.Close()
	<-done

	r.mu.Lock()
	r.data = nil
	r.src = nil
	r.stream = nil
	r.status = StatusIdle
	r.mu.Unlock()
	r.notify(StatusIdle)
}

func (r *Recorder) notify(s Status) {
	r.mu.Lock()
	fns := slices.Clone(r.onStatus)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
