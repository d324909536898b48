package manifest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/ytget/mediamirror/client"
	"github.com/ytget/mediamirror/errs"
	"github.com/ytget/mediamirror/internal/logger"
)

// fetchHLS maps an HLS playlist onto a Manifest. Master variants become video
// renditions, TYPE=AUDIO alternatives with a URI become audio renditions, and
// a bare media playlist becomes a single video rendition. EXT-X-MAP data is
// fetched and stored base64 encoded in InitSegment.
func (f *Fetcher) fetchHLS(ctx context.Context, rawURL string) (*Manifest, string, error) {
	log := logger.WithComponent(logger.ComponentManifest)

	body, finalURL, err := f.get(ctx, rawURL, "application/vnd.apple.mpegurl")
	if err != nil {
		return nil, "", err
	}
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode playlist: %v", errs.ErrManifestInvalid, err)
	}

	m := &Manifest{}
	switch listType {
	case m3u8.MEDIA:
		r, err := f.mediaRendition(ctx, finalURL, "", pl.(*m3u8.MediaPlaylist), body)
		if err != nil {
			return nil, "", err
		}
		m.Video = append(m.Video, r)
		m.SingleTrack = true
	case m3u8.MASTER:
		master := pl.(*m3u8.MasterPlaylist)
		seenAudio := make(map[string]bool)
		for _, v := range master.Variants {
			if v == nil || v.Iframe {
				continue
			}
			r, err := f.loadRendition(ctx, finalURL, v.URI)
			if err != nil {
				return nil, "", err
			}
			r.Bitrate = int(v.Bandwidth)
			r.AvgBitrate = int(v.AverageBandwidth)
			if r.AvgBitrate == 0 {
				r.AvgBitrate = r.Bitrate
			}
			r.Codecs = v.Codecs
			r.Width, r.Height = parseResolution(v.Resolution)
			r.Framerate = v.FrameRate
			m.Video = append(m.Video, r)

			for _, alt := range v.Alternatives {
				if alt == nil || !strings.EqualFold(alt.Type, "AUDIO") || alt.URI == "" || seenAudio[alt.URI] {
					continue
				}
				seenAudio[alt.URI] = true
				ar, err := f.loadRendition(ctx, finalURL, alt.URI)
				if err != nil {
					return nil, "", err
				}
				ar.ID = alt.GroupId + "/" + alt.Name
				m.Audio = append(m.Audio, ar)
			}
		}
		// audio muxed into the variants
		m.SingleTrack = len(m.Audio) == 0
	default:
		return nil, "", fmt.Errorf("%w: unknown playlist type", errs.ErrManifestInvalid)
	}

	log.Info("HLS playlist mapped", logger.Fields{
		"url":   finalURL,
		"video": len(m.Video),
		"audio": len(m.Audio),
	})
	return m, finalURL, nil
}

// loadRendition fetches the media playlist at uri (relative to masterURL).
func (f *Fetcher) loadRendition(ctx context.Context, masterURL, uri string) (Rendition, error) {
	mediaURL, err := resolve(masterURL, uri)
	if err != nil {
		return Rendition{}, fmt.Errorf("%w: variant %q: %v", errs.ErrManifestInvalid, uri, err)
	}
	body, _, err := f.get(ctx, mediaURL, "application/vnd.apple.mpegurl")
	if err != nil {
		return Rendition{}, err
	}
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return Rendition{}, fmt.Errorf("%w: decode media playlist %s: %v", errs.ErrManifestInvalid, mediaURL, err)
	}
	if listType != m3u8.MEDIA {
		return Rendition{}, fmt.Errorf("%w: %s is not a media playlist", errs.ErrManifestInvalid, mediaURL)
	}
	return f.mediaRendition(ctx, mediaURL, uri, pl.(*m3u8.MediaPlaylist), body)
}

// mediaRendition converts a media playlist served from mediaURL. baseURL is
// the rendition's base relative to the master playlist; body is the raw
// playlist the byte-range tags are re-read from.
func (f *Fetcher) mediaRendition(ctx context.Context, mediaURL, baseURL string, pl *m3u8.MediaPlaylist, body []byte) (Rendition, error) {
	r := Rendition{ID: baseURL, BaseURL: baseURL}

	if encrypted(pl.Key) {
		return Rendition{}, fmt.Errorf("%w: encrypted playlist (%s) is not supported", errs.ErrManifestInvalid, pl.Key.Method)
	}
	xmap := pl.Map
	ranges := byteRanges(body)
	rangeEnd := make(map[string]int64)
	if xmap != nil && xmap.Limit > 0 {
		// a MAP range without @o starts at 0, which is what the decoder leaves
		rangeEnd[xmap.URI] = xmap.Offset + xmap.Limit
	}
	n := 0
	for _, s := range pl.Segments {
		if s == nil {
			continue
		}
		offset := s.Offset
		if s.Limit > 0 {
			// no @o: continue after the previous sub-range of this resource
			if n < len(ranges) && ranges[n].ranged && !ranges[n].explicit {
				offset = rangeEnd[s.URI]
			}
			rangeEnd[s.URI] = offset + s.Limit
		}
		n++
		if encrypted(s.Key) {
			return Rendition{}, fmt.Errorf("%w: encrypted segments (%s) are not supported", errs.ErrManifestInvalid, s.Key.Method)
		}
		if xmap == nil && s.Map != nil {
			xmap = s.Map
		}
		r.Segments = append(r.Segments, Segment{
			URL:    s.URI,
			Start:  r.Duration,
			End:    r.Duration + s.Duration,
			Offset: offset,
			Length: s.Limit,
		})
		r.Duration += s.Duration
	}

	if xmap != nil && xmap.URI != "" {
		initURL, err := resolve(mediaURL, xmap.URI)
		if err != nil {
			return Rendition{}, fmt.Errorf("%w: init segment %q: %v", errs.ErrManifestInvalid, xmap.URI, err)
		}
		data, err := f.fetchRange(ctx, initURL, xmap.Offset, xmap.Limit)
		if err != nil {
			return Rendition{}, err
		}
		r.InitSegment = base64.StdEncoding.EncodeToString(data)
	}
	return r, nil
}

// fetchRange reads a whole resource, or length bytes from offset when length > 0.
func (f *Fetcher) fetchRange(ctx context.Context, rawURL string, offset, length int64) ([]byte, error) {
	c := f.Client
	if c == nil {
		c = client.New()
	}
	header := http.Header{}
	if length > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	}
	resp, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("%w: init segment: %v", errs.ErrManifestUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body io.Reader = resp.Body
	if length > 0 {
		if resp.StatusCode != http.StatusPartialContent {
			return nil, fmt.Errorf("%w: init segment: range ignored by server: status %d", errs.ErrManifestUnavailable, resp.StatusCode)
		}
		body = io.LimitReader(resp.Body, length)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: init segment: %v", errs.ErrManifestUnavailable, err)
	}
	if length > 0 && int64(len(data)) != length {
		return nil, fmt.Errorf("%w: init segment: got %d of %d bytes", errs.ErrManifestUnavailable, len(data), length)
	}
	return data, nil
}

// rangeTag records whether a media segment carried EXT-X-BYTERANGE and whether
// the tag named its offset.
type rangeTag struct {
	ranged   bool
	explicit bool
}

// byteRanges returns one rangeTag per media segment of a playlist, in order.
// A segment is a URI line preceded by EXTINF.
func byteRanges(body []byte) []rangeTag {
	var (
		out     []rangeTag
		pending rangeTag
		inf     bool
	)
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXTINF:"):
			inf = true
		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			pending = rangeTag{ranged: true, explicit: strings.Contains(line, "@")}
		case strings.HasPrefix(line, "#"):
		default:
			if inf {
				out = append(out, pending)
			}
			pending, inf = rangeTag{}, false
		}
	}
	return out
}

func encrypted(k *m3u8.Key) bool {
	return k != nil && k.Method != "" && !strings.EqualFold(k.Method, "NONE")
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// parseResolution parses "1920x1080".
func parseResolution(s string) (int, int) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0
	}
	width, _ := strconv.Atoi(w)
	height, _ := strconv.Atoi(h)
	return width, height
}
