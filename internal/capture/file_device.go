package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sync"
)

// FileDevice replays a prerecorded file as the capture stream. It is used on
// kiosks without a camera and in end-to-end checks.
type FileDevice struct {
	Path string
}

func (d *FileDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(d.Path); err != nil {
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	mt := mime.TypeByExtension(filepath.Ext(d.Path))
	if mt == "" {
		mt = webmMime
	}
	return &fileStream{path: d.Path, mime: mt, active: true}, nil
}

type fileStream struct {
	path string
	mime string

	mu     sync.Mutex
	active bool
}

func (s *fileStream) MimeType() string { return s.mime }

func (s *fileStream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *fileStream) Record() (io.ReadCloser, error) {
	if !s.Active() {
		return nil, ErrStreamInactive
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fileStream) Stop() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	return nil
}
