// Package segment rebuilds a track file from an init buffer and an ordered
// list of media segments.
//
// A run owns its destination and a sibling marker file named ".<file>~".
// The marker exists for as long as the destination cannot be trusted: it is
// created before the init bytes are written and removed only after the last
// segment has been synced to disk. A later run that finds the marker restarts
// the track from segment 0; a destination without a marker is complete and is
// never fetched again.
package segment

import (
	"path/filepath"
)

// Ref addresses one segment relative to a track base URL. A positive Length
// restricts the fetch to bytes [Offset, Offset+Length).
type Ref struct {
	URL    string
	Offset int64
	Length int64
}

// Job describes one track reconstruction.
type Job struct {
	// Path is the destination file.
	Path string
	// Init is written verbatim as the first bytes of the file.
	Init []byte
	// BaseURL is the absolute segment root; Segments resolve against it.
	BaseURL  string
	Segments []Ref
}

// Result reports the outcome of a run.
type Result struct {
	Path string
	// Skipped is set when the destination was already complete.
	Skipped bool
	// Restarted is set when a marker from an interrupted run was found.
	Restarted bool
	// NextSegment is the index of the first segment not yet on disk.
	NextSegment int
	// Bytes counts segment bytes written in this run, excluding the init.
	Bytes int64
}

// Progress is delivered after every chunk written.
type Progress struct {
	Path     string
	Segment  int
	Segments int
	Bytes    int64
}

// MarkerPath returns the in-progress marker for path.
func MarkerPath(path string) string {
	dir, name := filepath.Split(path)
	return filepath.Join(dir, "."+name+"~")
}
