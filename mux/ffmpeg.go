package mux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultFFmpegBinary is looked up on PATH when FFmpeg.Binary is empty.
const DefaultFFmpegBinary = "ffmpeg"

const stderrTail = 2048

// FFmpeg muxes with an external ffmpeg process using stream copy.
type FFmpeg struct {
	Binary string
}

func (f FFmpeg) args(videoPath, audioPath, outPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c", "copy",
		"-movflags", "+faststart",
		outPath,
	}
}

// Mux implements Muxer.
func (f FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	bin := f.Binary
	if bin == "" {
		bin = DefaultFFmpegBinary
	}
	cmd := exec.CommandContext(ctx, bin, f.args(videoPath, audioPath, outPath)...) // #nosec G204
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > stderrTail {
			msg = "..." + msg[len(msg)-stderrTail:]
		}
		if msg == "" {
			return fmt.Errorf("ffmpeg: %w", err)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return nil
}
