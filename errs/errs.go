package errs

import (
	"errors"
)

var (
	// ErrManifestUnavailable indicates the manifest could not be retrieved.
	ErrManifestUnavailable = errors.New("manifest unavailable")
	// ErrManifestInvalid indicates the manifest body could not be parsed.
	ErrManifestInvalid = errors.New("manifest invalid")
	// ErrNoRendition indicates the manifest lacks a rendition for a consumed track.
	ErrNoRendition = errors.New("no rendition available")
	// ErrSegmentFailed indicates a segment fetch or write aborted a track.
	ErrSegmentFailed = errors.New("segment download failed")
	// ErrTrackInProgress indicates another run currently owns the track file.
	ErrTrackInProgress = errors.New("track download in progress")
	// ErrMuxFailed indicates the track multiplexer did not produce an output.
	ErrMuxFailed = errors.New("mux failed")
	// ErrDownloadFailed indicates a direct download did not complete.
	ErrDownloadFailed = errors.New("download failed")
	// ErrInvalidDestination indicates the destination directory is unusable.
	ErrInvalidDestination = errors.New("invalid destination")
)
