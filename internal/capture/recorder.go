// Package capture records fixed-duration audio clips from the local
// microphone.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Recorder captures a clip from the default input device and persists it as
// a mono 16-bit WAV file.
type Recorder interface {
	// Record blocks until duration of audio has been captured at sampleRate,
	// writes it to the recorder's output path and returns that path.
	Record(ctx context.Context, duration time.Duration, sampleRate int) (string, error)
}

// FFmpeg records through the ffmpeg binary. There is no capture library in
// use here; ffmpeg owns the device handling, we own the arguments.
type FFmpeg struct {
	Binary      string // defaults to "ffmpeg"
	InputFormat string // alsa, avfoundation, dshow, ...
	Device      string
	OutputPath  string
}

// NewFFmpeg creates a recorder writing to outputPath.
func NewFFmpeg(inputFormat, device, outputPath string) *FFmpeg {
	return &FFmpeg{
		Binary:      "ffmpeg",
		InputFormat: inputFormat,
		Device:      device,
		OutputPath:  outputPath,
	}
}

// Record captures duration of mono 16-bit audio at sampleRate. Device
// errors (missing binary, unavailable input) are returned with ffmpeg's
// stderr attached; there is no retry.
func (r *FFmpeg) Record(ctx context.Context, duration time.Duration, sampleRate int) (string, error) {
	args := r.args(duration, sampleRate)

	log.Info().
		Str("device", r.Device).
		Dur("duration", duration).
		Int("sampleRate", sampleRate).
		Msg("recording from microphone")

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("audio capture failed: %w: %s", err, stderr.String())
	}

	log.Info().Str("path", r.OutputPath).Msg("recording complete")
	return r.OutputPath, nil
}

func (r *FFmpeg) args(duration time.Duration, sampleRate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", r.InputFormat,
		"-i", r.Device,
		"-t", strconv.FormatFloat(duration.Seconds(), 'f', -1, 64),
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-sample_fmt", "s16",
		"-y", r.OutputPath,
	}
}
