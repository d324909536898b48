package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ytget/mediamirror/client"
	"github.com/ytget/mediamirror/errs"
	"github.com/ytget/mediamirror/internal/logger"
)

// Fetcher retrieves manifests over HTTP.
type Fetcher struct {
	Client *client.Client
}

// NewFetcher creates a Fetcher. A nil client gets client.New().
func NewFetcher(c *client.Client) *Fetcher {
	if c == nil {
		c = client.New()
	}
	return &Fetcher{Client: c}
}

// Fetch retrieves and parses the manifest at rawURL. It returns the manifest
// together with the URL the body was finally served from, which anchors all
// relative base URLs. JSON manifests are requested with inline init segments.
//
// Errors wrap errs.ErrManifestUnavailable or errs.ErrManifestInvalid.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Manifest, string, error) {
	if IsHLS(rawURL) {
		return f.fetchHLS(ctx, rawURL)
	}

	log := logger.WithComponent(logger.ComponentManifest)

	reqURL, err := WithInlineInit(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errs.ErrManifestUnavailable, err)
	}
	log.Debug("Fetching manifest", logger.Fields{"url": reqURL})

	body, finalURL, err := f.get(ctx, reqURL, "application/json")
	if err != nil {
		return nil, "", err
	}
	m, err := Parse(body)
	if err != nil {
		return nil, "", err
	}
	log.Info("Manifest parsed", logger.Fields{
		"clip":  m.ClipID,
		"video": len(m.Video),
		"audio": len(m.Audio),
	})
	return m, finalURL, nil
}

// get performs a single GET (subject to the client's retry policy) and reads
// the whole decoded body.
func (f *Fetcher) get(ctx context.Context, rawURL, accept string) ([]byte, string, error) {
	c := f.Client
	if c == nil {
		c = client.New()
	}
	header := http.Header{}
	header.Set("Accept", accept)
	header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errs.ErrManifestUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	body, err := client.DecodeBody(resp)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errs.ErrManifestUnavailable, err)
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %v", errs.ErrManifestUnavailable, err)
	}
	return data, finalURL, nil
}
