// Package rendition picks the highest-bitrate rendition of each track and
// resolves its absolute segment root.
package rendition

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"

	"github.com/ytget/mediamirror/errs"
	"github.com/ytget/mediamirror/internal/logger"
	"github.com/ytget/mediamirror/manifest"
	"github.com/ytget/mediamirror/segment"
)

// Track kinds.
const (
	KindVideo = "video"
	KindAudio = "audio"
)

// Track is a selected rendition ready for reconstruction.
type Track struct {
	Kind       string
	ID         string
	AvgBitrate int
	BaseURL    string
	Init       []byte
	Segments   []segment.Ref
}

// Job converts t into a reconstruction job writing to path.
func (t *Track) Job(path string) segment.Job {
	return segment.Job{
		Path:     path,
		Init:     t.Init,
		BaseURL:  t.BaseURL,
		Segments: t.Segments,
	}
}

// Best returns the rendition with the highest AvgBitrate. Among equal
// bitrates the one listed last wins.
func Best(list []manifest.Rendition) (*manifest.Rendition, error) {
	if len(list) == 0 {
		return nil, errs.ErrNoRendition
	}
	sorted := make([]manifest.Rendition, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AvgBitrate < sorted[j].AvgBitrate
	})
	best := sorted[len(sorted)-1]
	return &best, nil
}

// ResolveBase resolves manifestBase against manifestURL, then renditionBase
// against the result.
func ResolveBase(manifestURL, manifestBase, renditionBase string) (string, error) {
	u, err := url.Parse(manifestURL)
	if err != nil {
		return "", fmt.Errorf("%w: manifest url: %v", errs.ErrManifestInvalid, err)
	}
	for _, ref := range []string{manifestBase, renditionBase} {
		r, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: base url %q: %v", errs.ErrManifestInvalid, ref, err)
		}
		u = u.ResolveReference(r)
	}
	return u.String(), nil
}

// Select picks the best video and audio renditions of m. manifestURL is the
// URL m was served from.
func Select(m *manifest.Manifest, manifestURL string) (video, audio *Track, err error) {
	video, err = pick(m, manifestURL, KindVideo, m.Video)
	if err != nil {
		return nil, nil, err
	}
	audio, err = pick(m, manifestURL, KindAudio, m.Audio)
	if err != nil {
		return nil, nil, err
	}
	return video, audio, nil
}

// SelectVideo picks the best video rendition only.
func SelectVideo(m *manifest.Manifest, manifestURL string) (*Track, error) {
	return pick(m, manifestURL, KindVideo, m.Video)
}

func pick(m *manifest.Manifest, manifestURL, kind string, list []manifest.Rendition) (*Track, error) {
	r, err := Best(list)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, kind)
	}
	base, err := ResolveBase(manifestURL, m.BaseURL, r.BaseURL)
	if err != nil {
		return nil, err
	}
	initData, err := base64.StdEncoding.DecodeString(r.InitSegment)
	if err != nil {
		return nil, fmt.Errorf("%w: %s init segment: %v", errs.ErrManifestInvalid, kind, err)
	}

	refs := make([]segment.Ref, len(r.Segments))
	for i, s := range r.Segments {
		refs[i] = segment.Ref{URL: s.URL, Offset: s.Offset, Length: s.Length}
	}

	logger.WithComponent(logger.ComponentRendition).Info("Selected rendition", logger.Fields{
		"kind":     kind,
		"id":       r.ID,
		"bitrate":  r.AvgBitrate,
		"segments": len(refs),
		"base":     base,
	})
	return &Track{
		Kind:       kind,
		ID:         r.ID,
		AvgBitrate: r.AvgBitrate,
		BaseURL:    base,
		Init:       initData,
		Segments:   refs,
	}, nil
}
