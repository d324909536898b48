// Package jobfile loads batches of jobs from YAML:
//
//	jobs:
//	  - url: https://cdn.example.com/v/playlist.json
//	    name: First clip
//	  - kind: direct
//	    url: https://cdn.example.com/files/second.mp4
//	    dir: /data/other
//	    name: Second clip
package jobfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ytget/mediamirror/internal/sanitize"
	"github.com/ytget/mediamirror/types"
)

// Entry is one job as written in the file.
type Entry struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
	Dir  string `yaml:"dir"`
	Name string `yaml:"name"`
}

// File is the document root.
type File struct {
	Jobs []Entry `yaml:"jobs"`
}

// Load reads the job file at path. See Parse.
func Load(path, defaultDir string) ([]types.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	jobs, err := Parse(data, defaultDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// Parse decodes a job file. Entries without dir use defaultDir, entries
// without kind get it inferred from the URL and entries without id get a
// random UUID. Entries without name get one derived from the URL alone, so
// reruns of the same file find the outputs and markers of earlier runs.
func Parse(data []byte, defaultDir string) ([]types.Job, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode job file: %w", err)
	}

	jobs := make([]types.Job, 0, len(f.Jobs))
	seen := make(map[string]int, len(f.Jobs))
	for i, e := range f.Jobs {
		rawURL := strings.TrimSpace(e.URL)
		if rawURL == "" {
			return nil, fmt.Errorf("job %d: url is required", i+1)
		}
		kind, err := types.ParseJobKind(e.Kind, rawURL)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i+1, err)
		}
		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = uuid.NewString()
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("job %d: id %q already used by job %d", i+1, id, prev)
		}
		seen[id] = i + 1
		dir := strings.TrimSpace(e.Dir)
		if dir == "" {
			dir = defaultDir
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = nameFromURL(rawURL)
		}
		jobs = append(jobs, types.Job{ID: id, Kind: kind, URL: rawURL, Dir: dir, Name: name})
	}
	return jobs, nil
}

// nameFromURL derives a stable base name: the last meaningful path element of
// rawURL plus a short name-based UUID of the whole URL, so that
// .../a/playlist.json and .../b/playlist.json do not collide.
func nameFromURL(rawURL string) string {
	stem := ""
	if u, err := url.Parse(rawURL); err == nil {
		p := strings.TrimSuffix(u.Path, "/")
		stem = strings.TrimSuffix(path.Base(p), path.Ext(p))
		if stem == "playlist" || stem == "master" || stem == "index" {
			stem = path.Base(path.Dir(p))
		}
	}
	if stem == "." || stem == "/" {
		stem = ""
	}
	sum := uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String()[:8]
	return sanitize.BaseName(stem + "-" + sum)
}
