package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "ErrManifestUnavailable",
			err:      ErrManifestUnavailable,
			expected: "manifest unavailable",
		},
		{
			name:     "ErrManifestInvalid",
			err:      ErrManifestInvalid,
			expected: "manifest invalid",
		},
		{
			name:     "ErrNoRendition",
			err:      ErrNoRendition,
			expected: "no rendition available",
		},
		{
			name:     "ErrSegmentFailed",
			err:      ErrSegmentFailed,
			expected: "segment download failed",
		},
		{
			name:     "ErrTrackInProgress",
			err:      ErrTrackInProgress,
			expected: "track download in progress",
		},
		{
			name:     "ErrMuxFailed",
			err:      ErrMuxFailed,
			expected: "mux failed",
		},
		{
			name:     "ErrDownloadFailed",
			err:      ErrDownloadFailed,
			expected: "download failed",
		},
		{
			name:     "ErrInvalidDestination",
			err:      ErrInvalidDestination,
			expected: "invalid destination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected error message '%s', got '%s'", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("segment 3: %w", ErrSegmentFailed)
	if !errors.Is(wrapped, ErrSegmentFailed) {
		t.Error("wrapped ErrSegmentFailed should match with errors.Is")
	}
	if errors.Is(wrapped, ErrMuxFailed) {
		t.Error("wrapped ErrSegmentFailed should not match ErrMuxFailed")
	}
}
