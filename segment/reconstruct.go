package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/mediamirror/client"
	"github.com/ytget/mediamirror/errs"
	"github.com/ytget/mediamirror/internal/logger"
	"github.com/ytget/mediamirror/internal/throttle"
)

const copyBufferSize = 32 * 1024

// active holds the absolute destinations currently being reconstructed in
// this process.
var active sync.Map

// Reconstructor downloads tracks segment by segment. The zero value is usable:
// it fetches with client.New(), waits per JitterPacer defaults and applies no
// rate limit.
type Reconstructor struct {
	Client   *client.Client
	Pacer    Pacer
	Limiter  *rate.Limiter
	Progress func(Progress)
}

// Run reconstructs job.Path. Segments are fetched strictly in order, one at
// a time, and every chunk is appended as it arrives.
//
// A failed segment leaves the marker in place and returns an error wrapping
// errs.ErrSegmentFailed; the file then holds the init bytes followed by every
// segment before the failing one. Cancelling ctx behaves the same way.
func (r *Reconstructor) Run(ctx context.Context, job Job) (*Result, error) {
	log := logger.WithComponent(logger.ComponentSegment)

	if job.Path == "" {
		return nil, fmt.Errorf("%w: empty track path", errs.ErrInvalidDestination)
	}
	key, err := filepath.Abs(job.Path)
	if err != nil {
		key = job.Path
	}
	if _, busy := active.LoadOrStore(key, struct{}{}); busy {
		return nil, fmt.Errorf("%w: %s", errs.ErrTrackInProgress, job.Path)
	}
	defer active.Delete(key)

	base, err := url.Parse(job.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url %q: %v", errs.ErrSegmentFailed, job.BaseURL, err)
	}

	res := &Result{Path: job.Path}
	marker := MarkerPath(job.Path)
	fields := logger.Fields{"path": job.Path, "segments": len(job.Segments)}

	switch {
	case exists(marker):
		log.Warn("Found incomplete track, restarting from the first segment", fields)
		res.Restarted = true
	case exists(job.Path):
		log.Info("Track already complete, skipping", fields)
		res.Skipped = true
		res.NextSegment = len(job.Segments)
		return res, nil
	default:
		mf, err := os.OpenFile(marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				return nil, fmt.Errorf("%w: %s", errs.ErrTrackInProgress, job.Path)
			}
			return nil, fmt.Errorf("create marker: %w", err)
		}
		if err := mf.Close(); err != nil {
			return nil, fmt.Errorf("create marker: %w", err)
		}
	}

	if err := os.WriteFile(job.Path, job.Init, 0o644); err != nil {
		return nil, fmt.Errorf("write init segment: %w", err)
	}
	out, err := os.OpenFile(job.Path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return nil, fmt.Errorf("open track for append: %w", err)
	}

	log.Info("Reconstructing track", fields)
	start := time.Now()
	buf := make([]byte, copyBufferSize)
	for i, ref := range job.Segments {
		res.NextSegment = i
		if err := r.wait(ctx, i); err != nil {
			_ = out.Close()
			return res, fmt.Errorf("%w: segment %d: %v", errs.ErrSegmentFailed, i, err)
		}
		n, err := r.fetch(ctx, base, ref, i, len(job.Segments), job.Path, res.Bytes, out, buf)
		res.Bytes += n
		if err != nil {
			_ = out.Close()
			log.Error("Segment failed, marker kept", logger.Fields{
				"path":    job.Path,
				"segment": i,
				"error":   err,
			})
			return res, fmt.Errorf("%w: segment %d: %v", errs.ErrSegmentFailed, i, err)
		}
	}
	res.NextSegment = len(job.Segments)

	if err := out.Sync(); err != nil {
		_ = out.Close()
		return res, fmt.Errorf("sync track: %w", err)
	}
	if err := out.Close(); err != nil {
		return res, fmt.Errorf("close track: %w", err)
	}
	if err := os.Remove(marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return res, fmt.Errorf("remove marker: %w", err)
	}

	log.Info("Track complete", logger.Fields{
		"path":     job.Path,
		"segments": len(job.Segments),
		"bytes":    res.Bytes,
		"elapsed":  time.Since(start).Round(time.Millisecond),
	})
	return res, nil
}

func (r *Reconstructor) wait(ctx context.Context, index int) error {
	var p Pacer = NewJitterPacer()
	if r.Pacer != nil {
		p = r.Pacer
	}
	d := p.Delay(index)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetch streams one segment into out and returns the bytes written.
func (r *Reconstructor) fetch(ctx context.Context, base *url.URL, ref Ref, index, total int, path string, written int64, out io.Writer, buf []byte) (int64, error) {
	u, err := url.Parse(ref.URL)
	if err != nil {
		return 0, fmt.Errorf("segment url %q: %w", ref.URL, err)
	}
	c := r.Client
	if c == nil {
		c = client.New()
	}
	var header http.Header
	if ref.Length > 0 {
		header = http.Header{"Range": {fmt.Sprintf("bytes=%d-%d", ref.Offset, ref.Offset+ref.Length-1)}}
	}

	resp, err := c.Get(ctx, base.ResolveReference(u).String(), header)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	var body io.Reader = resp.Body
	if ref.Length > 0 {
		if resp.StatusCode != http.StatusPartialContent {
			return 0, fmt.Errorf("range %s ignored by server: status %d", header.Get("Range"), resp.StatusCode)
		}
		body = io.LimitReader(resp.Body, ref.Length)
	}

	src := throttle.NewReader(ctx, body, r.Limiter)
	var n int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := out.Write(buf[:nr])
			n += int64(nw)
			if werr != nil {
				return n, fmt.Errorf("write: %w", werr)
			}
			if r.Progress != nil {
				r.Progress(Progress{Path: path, Segment: index, Segments: total, Bytes: written + n})
			}
		}
		if rerr == io.EOF {
			if ref.Length > 0 && n != ref.Length {
				return n, fmt.Errorf("short range body: got %d of %d bytes", n, ref.Length)
			}
			return n, nil
		}
		if rerr != nil {
			return n, fmt.Errorf("read body: %w", rerr)
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
