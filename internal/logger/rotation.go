package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// defaultLogFile is used when rotation is configured without a file: output.
const defaultLogFile = "mediamirror.log"

const rotatedSuffixLayout = "20060102-150405"

// RotatingWriter is an io.WriteCloser that rolls its file over by size or age.
// Rolled files are named <file>.<timestamp>[.gz]; at most maxBackups are kept.
type RotatingWriter struct {
	mu         sync.Mutex
	filename   string
	maxSize    int64
	maxAge     time.Duration
	maxBackups int
	compress   bool

	file     *os.File
	size     int64
	openedAt time.Time
	now      func() time.Time
}

// NewRotatingWriter opens (or creates) filename for appending.
func NewRotatingWriter(filename string, maxSize int64, maxAge time.Duration, maxBackups int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	rw := &RotatingWriter{
		filename:   filename,
		maxSize:    maxSize,
		maxAge:     maxAge,
		maxBackups: maxBackups,
		compress:   compress,
		now:        time.Now,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.file = f
	rw.size = info.Size()
	rw.openedAt = rw.now()
	return nil
}

// Write implements io.Writer.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, os.ErrClosed
	}
	if rw.due(int64(len(p))) {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}
	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Close closes the current file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

func (rw *RotatingWriter) due(incoming int64) bool {
	if rw.size == 0 {
		return false
	}
	if rw.maxSize > 0 && rw.size+incoming > rw.maxSize {
		return true
	}
	return rw.maxAge > 0 && rw.now().Sub(rw.openedAt) >= rw.maxAge
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}
	rolled := rw.filename + "." + rw.now().Format(rotatedSuffixLayout)
	if err := os.Rename(rw.filename, rolled); err != nil {
		return fmt.Errorf("rename log file: %w", err)
	}
	// compression and pruning problems must not stop logging
	if rw.compress {
		if err := gzipFile(rolled); err != nil {
			fmt.Fprintf(os.Stderr, "logger: compress %s: %v\n", rolled, err)
		}
	}
	if err := rw.prune(); err != nil {
		fmt.Fprintf(os.Stderr, "logger: prune backups: %v\n", err)
	}
	return rw.open()
}

func gzipFile(name string) error {
	src, err := os.Open(name)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(name + ".gz")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		_ = dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

// prune removes the oldest rolled files beyond maxBackups.
func (rw *RotatingWriter) prune() error {
	if rw.maxBackups <= 0 {
		return nil
	}
	dir, base := filepath.Dir(rw.filename), filepath.Base(rw.filename)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), base+".") {
			backups = append(backups, e.Name())
		}
	}
	if len(backups) <= rw.maxBackups {
		return nil
	}
	// timestamp suffixes sort lexically in chronological order
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-rw.maxBackups] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// CreateRotatingWriterFromConfig creates a rotating writer from LogConfig
func CreateRotatingWriterFromConfig(config *LogConfig) (*RotatingWriter, error) {
	r := config.Rotation
	if r == nil {
		r = &RotationConfig{}
	}
	maxSize, err := parseSize(r.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("parse max size: %w", err)
	}
	maxAge, err := parseDuration(r.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("parse max age: %w", err)
	}
	filename := defaultLogFile
	if strings.HasPrefix(config.Output, "file:") {
		filename = strings.TrimPrefix(config.Output, "file:")
	}
	return NewRotatingWriter(filename, maxSize, maxAge, r.MaxBackups, r.Compress)
}

// CreateLoggerWithRotation builds a logger whose file output rolls over per
// config.Rotation. Console outputs are used as-is.
func CreateLoggerWithRotation(config *LogConfig) (*Logger, io.Closer, error) {
	if err := config.ValidateConfig(); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}
	rotating := config.Rotation != nil && strings.HasPrefix(config.Output, "file:")
	plain := *config
	if rotating {
		// the rotating writer owns the file
		plain.Output = "null"
	}
	loggerConfig, err := plain.ToLoggerConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("convert config: %w", err)
	}
	var closer io.Closer = io.NopCloser(nil)
	if rotating {
		rw, err := CreateRotatingWriterFromConfig(config)
		if err != nil {
			return nil, nil, fmt.Errorf("create rotating writer: %w", err)
		}
		loggerConfig.Output = rw
		closer = rw
	} else if f, ok := loggerConfig.Output.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		closer = f
	}
	return New(loggerConfig), closer, nil
}
