package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ytget/mediamirror"
	"github.com/ytget/mediamirror/client"
	"github.com/ytget/mediamirror/internal/jobfile"
	"github.com/ytget/mediamirror/internal/logger"
	"github.com/ytget/mediamirror/mux"
	"github.com/ytget/mediamirror/segment"
	"github.com/ytget/mediamirror/types"
)

// EnvOutputDir supplies the default -dir value.
const EnvOutputDir = "MEDIAMIRROR_OUTPUT_DIR"

type options struct {
	manifest   string
	direct     string
	dir        string
	name       string
	jobs       string
	timeout    time.Duration
	retries    int
	ua         string
	proxy      string
	rateLimit  string
	minDelay   time.Duration
	maxDelay   time.Duration
	muxer      string
	tagTitle   bool
	noProgress bool
	envFile    string
	logConfig  string
}

func main() {
	os.Exit(run())
}

func run() int {
	var o options
	flag.StringVar(&o.manifest, "manifest", "", "Manifest URL (JSON playlist or HLS .m3u8)")
	flag.StringVar(&o.direct, "direct", "", "Direct URL of a progressive file")
	flag.StringVar(&o.dir, "dir", "", "Destination directory (default $"+EnvOutputDir+" or .)")
	flag.StringVar(&o.name, "name", "", "Output base name without extension")
	flag.StringVar(&o.jobs, "jobs", "", "YAML job file to process in batch")
	flag.DurationVar(&o.timeout, "http-timeout", 30*time.Second, "HTTP connect/response-header timeout (e.g., 30s, 1m)")
	flag.IntVar(&o.retries, "retries", 1, "HTTP attempts for transient errors (1 means no retry)")
	flag.StringVar(&o.ua, "ua", "", "Override User-Agent header")
	flag.StringVar(&o.proxy, "proxy", "", "Proxy URL (http/https/socks)")
	flag.StringVar(&o.rateLimit, "rate-limit", "", "Download rate limit (e.g., 2MiB/s, 500KiB/s)")
	flag.DurationVar(&o.minDelay, "min-delay", segment.DefaultMinDelay, "Minimum pause before each segment")
	flag.DurationVar(&o.maxDelay, "max-delay", segment.DefaultMaxDelay, "Maximum pause before each segment")
	flag.StringVar(&o.muxer, "muxer", "auto", "Track muxer: auto, ffmpeg or native")
	flag.BoolVar(&o.tagTitle, "tag-title", false, "Write the output name as MP4 title")
	flag.BoolVar(&o.noProgress, "no-progress", false, "Disable progress output")
	flag.StringVar(&o.envFile, "env", ".env", "Environment file to load if present")
	flag.StringVar(&o.logConfig, "log-config", "", "Logger config file (YAML or JSON)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [manifest_url]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()
	if o.manifest == "" && flag.NArg() > 0 {
		o.manifest = strings.TrimSpace(flag.Arg(0))
	}

	if err := loadEnv(o.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", o.envFile, err)
		return 2
	}
	closeLog, err := setupLogger(o.logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid logger configuration: %v\n", err)
		return 2
	}
	defer closeLog()

	if o.dir == "" {
		o.dir = os.Getenv(EnvOutputDir)
	}
	if o.dir == "" {
		o.dir = "."
	}

	jobs, err := buildJobs(o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		flag.Usage()
		return 2
	}
	for _, dir := range jobDirs(jobs) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output dir: %v\n", err)
			return 1
		}
	}

	m, err := newMirror(o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	var bars *progressRenderer
	if !o.noProgress {
		bars = newProgressRenderer()
		m = m.WithProgress(bars.Update)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := m.Run(ctx, jobs)
	if bars != nil {
		bars.Finish()
	}
	return report(results)
}

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// setupLogger installs the global logger from an optional config file
// overlaid with MEDIAMIRROR_LOG_* variables.
func setupLogger(path string) (func(), error) {
	cfg := logger.DefaultLogConfig()
	if path != "" {
		loaded, err := logger.LoadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg = logger.EnvironmentConfig(cfg)
	l, closer, err := logger.CreateLoggerWithRotation(cfg)
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(l)
	return func() { _ = closer.Close() }, nil
}

func buildJobs(o options) ([]types.Job, error) {
	var jobs []types.Job
	if o.jobs != "" {
		loaded, err := jobfile.Load(o.jobs, o.dir)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, loaded...)
	}
	if o.manifest != "" && o.direct != "" {
		return nil, errors.New("-manifest and -direct are mutually exclusive")
	}
	single := types.Job{ID: "cli", Dir: o.dir, Name: o.name}
	switch {
	case o.manifest != "":
		single.Kind, single.URL = types.KindSegmented, o.manifest
	case o.direct != "":
		single.Kind, single.URL = types.KindDirect, o.direct
	}
	if single.URL != "" {
		if single.Name == "" {
			return nil, errors.New("-name is required with -manifest or -direct")
		}
		jobs = append(jobs, single)
	}
	if len(jobs) == 0 {
		return nil, errors.New("nothing to do: give -manifest, -direct or -jobs")
	}
	return jobs, nil
}

func jobDirs(jobs []types.Job) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, j := range jobs {
		if !seen[j.Dir] {
			seen[j.Dir] = true
			dirs = append(dirs, j.Dir)
		}
	}
	return dirs
}

func newMirror(o options) (*mediamirror.Mirror, error) {
	c := client.NewWith(client.Config{Timeout: o.timeout, Retries: o.retries, UserAgent: o.ua, ProxyURL: o.proxy})

	var mx mux.Muxer
	switch strings.ToLower(o.muxer) {
	case "", "auto":
		mx = mux.Auto()
	case "ffmpeg":
		mx = mux.FFmpeg{}
	case "native":
		mx = mux.Native{}
	default:
		return nil, fmt.Errorf("unknown -muxer %q (want auto, ffmpeg or native)", o.muxer)
	}
	if o.maxDelay < o.minDelay {
		return nil, fmt.Errorf("-max-delay %v is below -min-delay %v", o.maxDelay, o.minDelay)
	}

	return mediamirror.New().
		WithClient(c).
		WithPacer(segment.JitterPacer{Min: o.minDelay, Max: o.maxDelay}).
		WithMuxer(mx).
		WithRateLimit(parseRate(o.rateLimit)).
		WithTitleTag(o.tagTitle), nil
}

// report prints one line per result and returns the process exit code.
func report(results []types.Result) int {
	code := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			code = 1
			hint := ""
			if mediamirror.IsRetryable(r.Err) {
				hint = " (rerun to retry)"
			}
			fmt.Fprintf(os.Stderr, "FAILED  %s: %v%s\n", r.JobID, r.Err, hint)
		case r.Skipped:
			_, _ = fmt.Fprintf(os.Stdout, "SKIPPED %s: %s\n", r.JobID, r.Output)
		default:
			_, _ = fmt.Fprintf(os.Stdout, "SAVED   %s: %s\n", r.JobID, r.Output)
		}
	}
	return code
}

// parseRate parses strings like "2MiB/s", "500KiB/s" into bytes per second.
func parseRate(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0
	}
	mul := int64(1)
	s = strings.TrimSuffix(s, "/S")
	s = strings.TrimSpace(s)
	sfx := ""
	for _, suf := range []string{"KIB", "MIB", "GIB", "KB", "MB", "GB"} {
		if strings.HasSuffix(s, suf) {
			sfx = suf
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	s = strings.TrimSpace(s)
	var val float64
	_, err := fmt.Sscanf(s, "%f", &val)
	if err != nil || val <= 0 {
		return 0
	}
	switch sfx {
	case "KIB":
		mul = 1024
	case "MIB":
		mul = 1024 * 1024
	case "GIB":
		mul = 1024 * 1024 * 1024
	case "KB":
		mul = 1000
	case "MB":
		mul = 1000 * 1000
	case "GB":
		mul = 1000 * 1000 * 1000
	}
	return int64(val * float64(mul))
}
