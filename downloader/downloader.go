// Package downloader implements the direct download path used when a source
// exposes one complete progressive file instead of a segmented manifest.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/mediamirror/client"
	"github.com/ytget/mediamirror/errs"
	"github.com/ytget/mediamirror/internal/logger"
	"github.com/ytget/mediamirror/internal/mimeext"
	"github.com/ytget/mediamirror/internal/throttle"
)

const (
	copyBufferSizeBytes = 32 * 1024 // 32KB
	headerContentRange  = "Content-Range"
	headerContentLength = "Content-Length"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAcceptEnc     = "Accept-Encoding"
)

// Progress holds information about download progress.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Downloader streams one URL to one file with optional rate limiting.
type Downloader struct {
	Client       *client.Client
	ProgressFunc func(Progress)
	Limiter      *rate.Limiter
}

// New creates a new downloader instance.
// If c is nil, client.New() is used. A nil limiter disables limiting.
func New(c *client.Client, progressFunc func(Progress), limiter *rate.Limiter) *Downloader {
	if c == nil {
		c = client.New()
	}
	return &Downloader{
		Client:       c,
		ProgressFunc: progressFunc,
		Limiter:      limiter,
	}
}

// contentSize infers the full resource size from Content-Range, then
// Content-Length. It returns 0 when neither is usable.
func contentSize(h http.Header) int64 {
	if cr := h.Get(headerContentRange); cr != "" {
		parts := strings.Split(cr, "/")
		if len(parts) == 2 {
			if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return v
			}
		}
	}
	if cl := h.Get(headerContentLength); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

// contentTypeProblem describes why a response of type ct looks wrong for the
// file at path. It returns "" for an acceptable or missing type.
func contentTypeProblem(ct, path string) string {
	if ct == "" {
		return ""
	}
	if !mimeext.IsMedia(ct) {
		return "not a media type"
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "application/") {
		return ""
	}
	want := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if got := mimeext.ExtFromMime(ct); want != "" && got != want {
		return fmt.Sprintf("served as .%s, saving as .%s", got, want)
	}
	return ""
}

// Download fetches urlStr into outputPath. The file is created (or truncated)
// before the request; on any failure it is removed so no partial file is left
// behind. A failed removal is logged, not returned.
//
// Errors wrap errs.ErrDownloadFailed.
func (d *Downloader) Download(ctx context.Context, urlStr string, outputPath string) error {
	log := logger.WithComponent(logger.ComponentDownloader)
	log.Info("Starting direct download", logger.Fields{"url": urlStr, "output": outputPath})

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("%w: create output file: %v", errs.ErrDownloadFailed, err)
	}

	start := time.Now()
	written, err := d.copyTo(ctx, urlStr, outputPath, outFile)
	if cerr := outFile.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output file: %w", cerr)
	}
	if err != nil {
		if rerr := os.Remove(outputPath); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			log.Warn("Could not remove partial download", logger.Fields{
				"output": outputPath,
				"error":  rerr,
			})
		}
		log.Error("Direct download failed", logger.Fields{"url": urlStr, "error": err})
		return fmt.Errorf("%w: %v", errs.ErrDownloadFailed, err)
	}

	log.Info("Direct download complete", logger.Fields{
		"output":  outputPath,
		"bytes":   written,
		"elapsed": time.Since(start).Round(time.Millisecond),
	})
	return nil
}

func (d *Downloader) copyTo(ctx context.Context, urlStr, path string, out io.Writer) (int64, error) {
	c := d.Client
	if c == nil {
		c = client.New()
	}
	header := http.Header{}
	header.Set(headerAccept, "*/*")
	header.Set(headerAcceptEnc, "identity")

	resp, err := c.Get(ctx, urlStr, header)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if problem := contentTypeProblem(resp.Header.Get(headerContentType), path); problem != "" {
		logger.WithComponent(logger.ComponentDownloader).Warn("Unexpected content type", logger.Fields{
			"url":          urlStr,
			"content_type": resp.Header.Get(headerContentType),
			"problem":      problem,
		})
	}
	totalSize := contentSize(resp.Header)
	src := throttle.NewReader(ctx, resp.Body, d.Limiter)
	buf := make([]byte, copyBufferSizeBytes)
	var downloaded int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return downloaded, fmt.Errorf("failed to write chunk: %w", werr)
			}
			downloaded += int64(n)
			if d.ProgressFunc != nil {
				p := Progress{TotalSize: totalSize, DownloadedSize: downloaded}
				if totalSize > 0 {
					p.Percent = float64(downloaded) / float64(totalSize) * 100
				}
				d.ProgressFunc(p)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return downloaded, fmt.Errorf("failed to read response body: %w", rerr)
		}
	}
	if totalSize > 0 && downloaded < totalSize {
		return downloaded, fmt.Errorf("short body: %d of %d bytes", downloaded, totalSize)
	}
	return downloaded, nil
}
