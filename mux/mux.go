// Package mux combines a reconstructed video track and audio track into one
// MP4 container without re-encoding.
package mux

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	"github.com/ytget/mediamirror/errs"
	"github.com/ytget/mediamirror/internal/logger"
)

// Muxer writes outPath from the video and audio inputs. Inputs are left
// untouched.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath, outPath string) error
}

// Auto returns an FFmpeg muxer when ffmpeg is on PATH, else Native.
func Auto() Muxer {
	if path, err := exec.LookPath(DefaultFFmpegBinary); err == nil {
		return FFmpeg{Binary: path}
	}
	logger.WithComponent(logger.ComponentMux).Debug("ffmpeg not found, using native muxer")
	return Native{}
}

// Combine muxes the two tracks into outPath. On success both inputs are
// deleted. On failure they are kept for a later attempt, any partial output
// is removed, and the returned error wraps errs.ErrMuxFailed.
func Combine(ctx context.Context, m Muxer, videoPath, audioPath, outPath string) error {
	log := logger.WithComponent(logger.ComponentMux)
	if m == nil {
		m = Auto()
	}

	log.Info("Multiplexing tracks", logger.Fields{
		"video":  videoPath,
		"audio":  audioPath,
		"output": outPath,
		"muxer":  fmt.Sprintf("%T", m),
	})
	if err := m.Mux(ctx, videoPath, audioPath, outPath); err != nil {
		if rerr := os.Remove(outPath); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			log.Warn("Could not remove partial output", logger.Fields{"output": outPath, "error": rerr})
		}
		log.Error("Multiplexing failed, intermediates kept", logger.Fields{"output": outPath, "error": err})
		return fmt.Errorf("%w: %v", errs.ErrMuxFailed, err)
	}

	for _, p := range []string{videoPath, audioPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Could not remove intermediate track", logger.Fields{"path": p, "error": err})
		}
	}
	log.Info("Multiplexing complete", logger.Fields{"output": outPath})
	return nil
}
