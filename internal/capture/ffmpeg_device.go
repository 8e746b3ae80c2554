package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	webmMime         = "video/webm"
	ffmpegStopGrace  = 5 * time.Second
	ffmpegBinaryName = "ffmpeg"
)

// FFmpegDevice captures camera (and optionally microphone) input through the
// ffmpeg binary and encodes it to webm on a pipe.
type FFmpegDevice struct {
	// Format is the ffmpeg input format: v4l2, avfoundation or dshow.
	Format string
	// Video is the input name, e.g. /dev/video0, "0" or "video=Integrated Camera".
	Video string
	// Audio is an optional second input, e.g. "default" for alsa/pulse.
	Audio       string
	AudioFormat string
	Log         zerolog.Logger
}

// Open checks that the device can be used and returns a stream handle.
func (d *FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Format == "v4l2" {
		f, err := os.OpenFile(d.Video, os.O_RDONLY, 0)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		_ = f.Close()
	}
	if _, err := exec.LookPath(ffmpegBinaryName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return &ffmpegStream{dev: d, active: true}, nil
}

type ffmpegStream struct {
	dev *FFmpegDevice

	mu     sync.Mutex
	active bool
	rec    *ffmpegRecording
}

func (s *ffmpegStream) MimeType() string { return webmMime }

func (s *ffmpegStream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *ffmpegStream) Record() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil, ErrStreamInactive
	}

	pr, pw := io.Pipe()
	cmd := s.dev.command(pw)
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	rec := &ffmpegRecording{PipeReader: pr, cmd: cmd, exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		if err == nil {
			err = io.EOF
		}
		_ = pw.CloseWithError(err)
		close(rec.exited)
	}()
	s.rec = rec

	s.dev.Log.Debug().Strs("args", cmd.Args).Msg("ffmpeg started")
	return rec, nil
}

func (s *ffmpegStream) Stop() error {
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.active = false
	s.mu.Unlock()

	if rec != nil {
		return rec.Close()
	}
	return nil
}

func (d *FFmpegDevice) command(out io.Writer) *exec.Cmd {
	video := ffmpeg.Input(d.Video, ffmpeg.KwArgs{"f": d.Format})
	kw := ffmpeg.KwArgs{
		"f":        "webm",
		"c:v":      "libvpx",
		"b:v":      "500k",
		"deadline": "realtime",
		"loglevel": "error",
	}
	if d.Audio == "" {
		return video.Output("pipe:", kw).WithOutput(out).Compile()
	}
	audio := ffmpeg.Input(d.Audio, ffmpeg.KwArgs{"f": d.AudioFormat})
	kw["c:a"] = "libopus"
	return ffmpeg.Output([]*ffmpeg.Stream{video, audio}, "pipe:", kw).WithOutput(out).Compile()
}

// ffmpegRecording is the encoder output. Close asks ffmpeg to finish the
// container, then waits for the process so the trailing bytes reach the pipe.
type ffmpegRecording struct {
	*io.PipeReader
	cmd    *exec.Cmd
	exited chan struct{}
	once   sync.Once
}

func (r *ffmpegRecording) Close() error {
	var err error
	r.once.Do(func() {
		select {
		case <-r.exited:
			return
		default:
		}
		if r.cmd.Process != nil {
			err = r.cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-r.exited:
		case <-time.After(ffmpegStopGrace):
			err = r.cmd.Process.Kill()
			<-r.exited
		}
	})
	return err
}
