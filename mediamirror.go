package mediamirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/mediamirror/client"
	"github.com/ytget/mediamirror/downloader"
	"github.com/ytget/mediamirror/errs"
	"github.com/ytget/mediamirror/internal/logger"
	"github.com/ytget/mediamirror/internal/sanitize"
	"github.com/ytget/mediamirror/internal/throttle"
	"github.com/ytget/mediamirror/manifest"
	"github.com/ytget/mediamirror/mux"
	"github.com/ytget/mediamirror/rendition"
	"github.com/ytget/mediamirror/segment"
	"github.com/ytget/mediamirror/types"
)

// Output file extensions.
const (
	ExtVideo = ".m4v"
	ExtAudio = ".m4a"
	ExtFinal = ".mp4"
)

// Options contains configuration shared by every job of a Mirror.
//
// Use chainable setters on Mirror to populate these options.
type Options struct {
	Client       *client.Client
	Pacer        segment.Pacer
	Muxer        mux.Muxer
	RateLimitBps int64
	ProgressFunc func(types.Progress)
	TagTitle     bool
}

// Mirror runs segmented and direct acquisition jobs.
type Mirror struct {
	options Options
	limiter *rate.Limiter
}

// startPprofServer starts a pprof server for debugging
func startPprofServer() {
	log := logger.WithComponent(logger.ComponentApp)
	go func() {
		serveMux := http.NewServeMux()
		serveMux.HandleFunc("/debug/pprof/", pprof.Index)
		serveMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		serveMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		serveMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		serveMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		log.Info("Starting pprof server", logger.Fields{"addr": ":6060"})
		if err := http.ListenAndServe(":6060", serveMux); err != nil {
			log.Error("pprof server error", logger.Fields{"error": err})
		}
	}()
}

// New creates a new Mirror with default options: a single-attempt HTTP
// client, jittered pacing between segments, the muxer chosen by mux.Auto and
// no rate limit.
func New() *Mirror {
	if os.Getenv("MEDIAMIRROR_PPROF") == "1" {
		startPprofServer()
	}
	return &Mirror{}
}

// WithHTTPClient sets a custom HTTP client to be used for all network calls.
func (m *Mirror) WithHTTPClient(hc *http.Client) *Mirror {
	c := client.New()
	if hc != nil {
		c.HTTPClient = hc
	}
	m.options.Client = c
	return m
}

// WithClient sets a fully configured client (timeouts, retries, proxy).
func (m *Mirror) WithClient(c *client.Client) *Mirror {
	m.options.Client = c
	return m
}

// WithPacer sets the delay strategy between segment fetches.
func (m *Mirror) WithPacer(p segment.Pacer) *Mirror {
	m.options.Pacer = p
	return m
}

// WithMuxer sets the track multiplexer.
func (m *Mirror) WithMuxer(mx mux.Muxer) *Mirror {
	m.options.Muxer = mx
	return m
}

// WithRateLimit sets a download rate limit in bytes per second, shared by all
// transfers of this Mirror. Zero disables limiting.
func (m *Mirror) WithRateLimit(bytesPerSecond int64) *Mirror {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	m.options.RateLimitBps = bytesPerSecond
	m.limiter = throttle.NewLimiter(bytesPerSecond)
	return m
}

// WithProgress registers a callback that receives progress updates.
func (m *Mirror) WithProgress(f func(types.Progress)) *Mirror {
	m.options.ProgressFunc = f
	return m
}

// WithTitleTag enables writing the job name as the MP4 title atom.
func (m *Mirror) WithTitleTag(enabled bool) *Mirror {
	m.options.TagTitle = enabled
	return m
}

func (m *Mirror) client() *client.Client {
	if m.options.Client != nil {
		return m.options.Client
	}
	m.options.Client = client.New()
	return m.options.Client
}

func (m *Mirror) muxer() mux.Muxer {
	if m.options.Muxer == nil {
		m.options.Muxer = mux.Auto()
	}
	return m.options.Muxer
}

func (m *Mirror) reconstructor(jobID string, stage types.Stage) *segment.Reconstructor {
	r := &segment.Reconstructor{
		Client:  m.client(),
		Pacer:   m.options.Pacer,
		Limiter: m.limiter,
	}
	if f := m.options.ProgressFunc; f != nil {
		r.Progress = func(p segment.Progress) {
			f(types.Progress{
				JobID:    jobID,
				Stage:    stage,
				Path:     p.Path,
				Segment:  p.Segment,
				Segments: p.Segments,
				Bytes:    p.Bytes,
			})
		}
	}
	return r
}

// outputs returns the video, audio and final paths for name in dir.
func outputs(dir, name string) (video, audio, final string) {
	base := filepath.Join(dir, sanitize.BaseName(name))
	return sanitize.WithExt(base, ExtVideo), sanitize.WithExt(base, ExtAudio), sanitize.WithExt(base, ExtFinal)
}

func checkDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidDestination, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", errs.ErrInvalidDestination, dir)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FetchSegmented mirrors the manifest at manifestURL into <dir>/<name>.mp4.
//
// The item is skipped when <name>.mp4 exists and no intermediate track is
// left over. Otherwise the video track is rebuilt into <name>.m4v, the audio
// track into <name>.m4a, and both are multiplexed; intermediates are removed
// only after a successful mux. A single-track manifest (an HLS media playlist
// or muxed variants) yields the video track renamed to <name>.mp4; any other
// manifest lacking audio renditions fails with errs.ErrNoRendition.
func (m *Mirror) FetchSegmented(ctx context.Context, manifestURL, dir, name string) (*types.Result, error) {
	return m.fetchSegmented(ctx, "", manifestURL, dir, name)
}

func (m *Mirror) fetchSegmented(ctx context.Context, jobID, manifestURL, dir, name string) (*types.Result, error) {
	log := logger.WithComponent(logger.ComponentApp)
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	videoPath, audioPath, finalPath := outputs(dir, name)
	res := &types.Result{JobID: jobID, Output: finalPath}

	if exists(finalPath) && !exists(videoPath) && !exists(audioPath) {
		log.Info("Output already present, skipping", logger.Fields{"output": finalPath})
		res.Skipped = true
		return res, nil
	}

	start := time.Now()
	mf, servedFrom, err := manifest.NewFetcher(m.client()).Fetch(ctx, manifestURL)
	if err != nil {
		return nil, err
	}

	if mf.SingleTrack {
		video, err := rendition.SelectVideo(mf, servedFrom)
		if err != nil {
			return nil, err
		}
		if _, err := m.reconstructor(jobID, types.StageVideo).Run(ctx, video.Job(videoPath)); err != nil {
			return nil, err
		}
		if err := os.Rename(videoPath, finalPath); err != nil {
			return nil, fmt.Errorf("rename video track: %w", err)
		}
	} else {
		video, audio, err := rendition.Select(mf, servedFrom)
		if err != nil {
			return nil, err
		}
		if _, err := m.reconstructor(jobID, types.StageVideo).Run(ctx, video.Job(videoPath)); err != nil {
			return nil, err
		}
		if _, err := m.reconstructor(jobID, types.StageAudio).Run(ctx, audio.Job(audioPath)); err != nil {
			return nil, err
		}
		if err := mux.Combine(ctx, m.muxer(), videoPath, audioPath, finalPath); err != nil {
			return nil, err
		}
	}

	m.tag(finalPath, name)
	log.Info("Segmented job complete", logger.Fields{
		"output":  finalPath,
		"elapsed": time.Since(start).Round(time.Millisecond),
	})
	return res, nil
}

// FetchDirect downloads the progressive file at rawURL into <dir>/<name>.mp4.
func (m *Mirror) FetchDirect(ctx context.Context, rawURL, dir, name string) (*types.Result, error) {
	return m.fetchDirect(ctx, "", rawURL, dir, name)
}

func (m *Mirror) fetchDirect(ctx context.Context, jobID, rawURL, dir, name string) (*types.Result, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	_, _, finalPath := outputs(dir, name)

	var progress func(downloader.Progress)
	if f := m.options.ProgressFunc; f != nil {
		progress = func(p downloader.Progress) {
			f(types.Progress{
				JobID: jobID,
				Stage: types.StageDirect,
				Path:  finalPath,
				Bytes: p.DownloadedSize,
				Total: p.TotalSize,
			})
		}
	}
	if err := downloader.New(m.client(), progress, m.limiter).Download(ctx, rawURL, finalPath); err != nil {
		return nil, err
	}
	m.tag(finalPath, name)
	return &types.Result{JobID: jobID, Output: finalPath}, nil
}

// tag writes the title atom when enabled. Failures are logged only.
func (m *Mirror) tag(path, title string) {
	if !m.options.TagTitle {
		return
	}
	if err := mux.TagTitle(path, title); err != nil {
		logger.WithComponent(logger.ComponentMux).Warn("Could not tag title", logger.Fields{
			"output": path,
			"error":  err,
		})
	}
}

// Fetch runs one job according to its Kind.
func (m *Mirror) Fetch(ctx context.Context, job types.Job) (*types.Result, error) {
	switch job.Kind {
	case types.KindSegmented:
		return m.fetchSegmented(ctx, job.ID, job.URL, job.Dir, job.Name)
	case types.KindDirect:
		return m.fetchDirect(ctx, job.ID, job.URL, job.Dir, job.Name)
	case "":
		job.Kind = types.InferKind(job.URL)
		return m.Fetch(ctx, job)
	}
	return nil, fmt.Errorf("unknown job kind %q", job.Kind)
}

// Run processes jobs one after another. A failing job is logged and recorded
// in its Result; it never stops the batch. Run returns early only when ctx is
// cancelled, marking the remaining jobs with ctx.Err().
func (m *Mirror) Run(ctx context.Context, jobs []types.Job) []types.Result {
	log := logger.WithComponent(logger.ComponentApp)
	results := make([]types.Result, 0, len(jobs))
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			for _, rest := range jobs[i:] {
				results = append(results, types.Result{JobID: rest.ID, Err: err})
			}
			break
		}
		res, err := m.Fetch(ctx, job)
		if err != nil {
			log.Error("Job failed", logger.Fields{
				"job":   job.ID,
				"url":   job.URL,
				"error": err,
			})
			results = append(results, types.Result{JobID: job.ID, Err: err})
			continue
		}
		res.JobID = job.ID
		results = append(results, *res)
	}
	return results
}

// Failed returns the results that carry an error.
func Failed(results []types.Result) []types.Result {
	var out []types.Result
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// IsRetryable reports whether err leaves state a later run can resume from,
// as opposed to a manifest that will never yield output.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, errs.ErrManifestInvalid), errors.Is(err, errs.ErrNoRendition), errors.Is(err, errs.ErrInvalidDestination):
		return false
	case errors.Is(err, fs.ErrPermission):
		return false
	}
	return err != nil
}
