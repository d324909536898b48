package types

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// JobKind selects the acquisition path for a job.
type JobKind string

const (
	// KindSegmented fetches a manifest and rebuilds its tracks.
	KindSegmented JobKind = "segmented"
	// KindDirect streams one progressive file.
	KindDirect JobKind = "direct"
)

// ParseJobKind accepts "segmented", "direct", or an empty string (which is
// inferred from rawURL).
func ParseJobKind(s, rawURL string) (JobKind, error) {
	switch JobKind(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return InferKind(rawURL), nil
	case KindSegmented:
		return KindSegmented, nil
	case KindDirect:
		return KindDirect, nil
	}
	return "", fmt.Errorf("unknown job kind %q", s)
}

// InferKind treats URLs whose path ends in a progressive container extension
// as direct downloads and everything else as a manifest.
func InferKind(rawURL string) JobKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return KindSegmented
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".mp4", ".m4v", ".mov", ".webm":
		return KindDirect
	}
	return KindSegmented
}

// Job is one unit of work: a source URL, a destination directory and the base
// name of the output file (without extension).
type Job struct {
	ID   string
	Kind JobKind
	URL  string
	Dir  string
	Name string
}

// Result describes the outcome of one job.
type Result struct {
	JobID   string
	Output  string
	Skipped bool
	Err     error
}

// OK reports whether the job succeeded (or had nothing to do).
func (r Result) OK() bool { return r.Err == nil }

// Stage names the step a Progress update belongs to.
type Stage string

const (
	StageVideo  Stage = "video"
	StageAudio  Stage = "audio"
	StageDirect Stage = "direct"
)

// Progress is reported while bytes arrive. Total is 0 when unknown.
type Progress struct {
	JobID    string
	Stage    Stage
	Path     string
	Segment  int
	Segments int
	Bytes    int64
	Total    int64
}
