// Package manifest retrieves and decodes adaptive-streaming manifests: the
// JSON playlist format with inline base64 init segments, and HLS playlists
// mapped onto the same model.
package manifest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ytget/mediamirror/errs"
)

// InlineInitParam is the query parameter asking the origin to embed init
// segments in the manifest as base64.
const InlineInitParam = "base64_init"

// Manifest is the parsed adaptive-streaming descriptor. It is immutable once
// returned by Parse or Fetcher.Fetch.
type Manifest struct {
	ClipID  string      `json:"clip_id"`
	BaseURL string      `json:"base_url"`
	Video   []Rendition `json:"video"`
	Audio   []Rendition `json:"audio"`

	// SingleTrack is set for HLS media playlists and for masters whose
	// variants carry muxed audio: each video rendition is a complete item.
	// JSON manifests never set it.
	SingleTrack bool `json:"-"`
}

// Rendition is one encoded quality variant of a track.
type Rendition struct {
	ID         string  `json:"id"`
	BaseURL    string  `json:"base_url"`
	Format     string  `json:"format,omitempty"`
	MimeType   string  `json:"mime_type,omitempty"`
	Codecs     string  `json:"codecs,omitempty"`
	Bitrate    int     `json:"bitrate"`
	AvgBitrate int     `json:"avg_bitrate"`
	Duration   float64 `json:"duration,omitempty"`

	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Framerate  float64 `json:"framerate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`

	// InitSegment is the base64 encoded container header.
	InitSegment string    `json:"init_segment"`
	Segments    []Segment `json:"segments"`
}

// Segment is one media chunk. Order within Rendition.Segments is significant.
// A positive Length restricts the fetch to bytes [Offset, Offset+Length).
type Segment struct {
	URL   string  `json:"url"`
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	Size  int64   `json:"size,omitempty"`

	Offset int64 `json:"offset,omitempty"`
	Length int64 `json:"length,omitempty"`
}

// Parse decodes a JSON manifest body.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrManifestInvalid, err)
	}
	return &m, nil
}

// WithInlineInit returns rawURL with base64_init=1 appended unless the
// parameter is already present. The existing query is kept byte for byte.
func WithInlineInit(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if _, ok := u.Query()[InlineInitParam]; ok {
		return rawURL, nil
	}
	param := InlineInitParam + "=1"
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery = strings.TrimSuffix(u.RawQuery, "&") + "&" + param
	}
	return u.String(), nil
}

// IsHLS reports whether rawURL names an HLS playlist.
func IsHLS(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}
