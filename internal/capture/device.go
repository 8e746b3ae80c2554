package capture

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DeviceConfig selects and parameterizes a capture device.
type DeviceConfig struct {
	Driver      string // ffmpeg | file
	Format      string
	Device      string
	Audio       string
	AudioFormat string
}

// NewDevice builds the device named by cfg.Driver.
func NewDevice(cfg DeviceConfig, log zerolog.Logger) (Device, error) {
	switch cfg.Driver {
	case "ffmpeg", "":
		return &FFmpegDevice{
			Format:      cfg.Format,
			Video:       cfg.Device,
			Audio:       cfg.Audio,
			AudioFormat: cfg.AudioFormat,
			Log:         log.With().Str("component", "ffmpeg").Logger(),
		}, nil
	case "file":
		return &FileDevice{Path: cfg.Device}, nil
	default:
		return nil, fmt.Errorf("unknown capture driver %q", cfg.Driver)
	}
}
