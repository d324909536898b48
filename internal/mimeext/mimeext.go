// Package mimeext maps media MIME types to file extensions.
package mimeext

import (
	"strings"
)

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "mp4"

	// ExtM4A is the file extension for MP4 audio.
	ExtM4A = "m4a"
	// ExtWebM is the file extension for WebM media.
	ExtWebM = "webm"
	// ExtTS is the file extension for MPEG transport streams.
	ExtTS = "ts"

	// MimeVideoMP4 is the MIME type for MP4 video.
	MimeVideoMP4 = "video/mp4"
	// MimeAudioMP4 is the MIME type for MP4 audio.
	MimeAudioMP4 = "audio/mp4"
	// MimeVideoWebM is the MIME type for WebM video.
	MimeVideoWebM = "video/webm"
	// MimeAudioWebM is the MIME type for WebM audio.
	MimeAudioWebM = "audio/webm"
	// MimeVideoMP2T is the MIME type for MPEG transport streams.
	MimeVideoMP2T = "video/mp2t"
	// MimeOctetStream is the generic binary MIME type many CDNs serve media as.
	MimeOctetStream = "application/octet-stream"
)

// base strips parameters and normalizes case.
func base(mime string) string {
	mime = strings.TrimSpace(mime)
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return strings.ToLower(mime)
}

// ExtFromMime returns file extension (without dot) for given mime type.
// Falls back to subtype or mp4 if unknown.
func ExtFromMime(mime string) string {
	b := base(mime)
	if b == "" {
		return DefaultExt
	}
	switch b {
	case MimeVideoMP4:
		return DefaultExt
	case MimeAudioMP4:
		return ExtM4A
	case MimeVideoWebM, MimeAudioWebM:
		return ExtWebM
	case MimeVideoMP2T:
		return ExtTS
	}
	// Try subtype
	parts := strings.Split(b, "/")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}
	return DefaultExt
}

// IsMedia reports whether mime can carry media bytes: any audio/* or video/*
// type, or a generic binary stream.
func IsMedia(mime string) bool {
	b := base(mime)
	return strings.HasPrefix(b, "video/") || strings.HasPrefix(b, "audio/") || b == MimeOctetStream
}
