package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ytget/mediamirror/client"
	"github.com/ytget/mediamirror/errs"
	"github.com/ytget/mediamirror/internal/throttle"
)

func TestContentSize(t *testing.T) {
	tests := []struct {
		name            string
		responseHeaders map[string]string
		expectedSize    int64
	}{
		{
			name: "Content-Range",
			responseHeaders: map[string]string{
				"Content-Range": "bytes 0-1/1000000",
			},
			expectedSize: 1000000,
		},
		{
			name: "Content-Length",
			responseHeaders: map[string]string{
				"Content-Length": "500000",
			},
			expectedSize: 500000,
		},
		{
			name: "Content-Range wins",
			responseHeaders: map[string]string{
				"Content-Range":  "bytes 0-1/2000000",
				"Content-Length": "2",
			},
			expectedSize: 2000000,
		},
		{
			name: "Invalid Content-Range format",
			responseHeaders: map[string]string{
				"Content-Range": "invalid-format",
			},
			expectedSize: 0,
		},
		{
			name:            "No size headers",
			responseHeaders: map[string]string{},
			expectedSize:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := make(http.Header)
			for k, v := range tt.responseHeaders {
				h.Set(k, v)
			}
			if size := contentSize(h); size != tt.expectedSize {
				t.Errorf("Expected size %d, got %d", tt.expectedSize, size)
			}
		})
	}
}

func makeServer(data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		_, _ = w.Write(data)
	}))
}

func TestContentTypeProblem(t *testing.T) {
	tests := []struct {
		ct      string
		path    string
		problem bool
	}{
		{"", "out/clip.mp4", false},
		{"video/mp4", "out/clip.mp4", false},
		{"video/mp4; codecs=\"avc1.64001f\"", "out/clip.mp4", false},
		{"application/octet-stream", "out/clip.mp4", false},
		{"audio/mp4", "out/clip.m4a", false},
		{"text/html; charset=utf-8", "out/clip.mp4", true},
		{"video/webm", "out/clip.mp4", true},
		{"video/mp2t", "out/clip.mp4", true},
	}
	for _, tt := range tests {
		got := contentTypeProblem(tt.ct, tt.path)
		if (got != "") != tt.problem {
			t.Errorf("contentTypeProblem(%q, %q) = %q, want problem=%v", tt.ct, tt.path, got, tt.problem)
		}
	}
}

func TestDownload(t *testing.T) {
	data := make([]byte, 2<<20) // 2MB
	for i := range data {
		data[i] = byte(i % 251)
	}
	server := makeServer(data)
	defer server.Close()

	var last Progress
	dl := New(nil, func(p Progress) { last = p }, nil)
	out := filepath.Join(t.TempDir(), "file.mp4")

	if err := dl.Download(context.Background(), server.URL, out); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	bs, err := os.ReadFile(out)
	if err != nil || len(bs) != len(data) {
		t.Fatalf("bad size/content: err=%v got=%d want=%d", err, len(bs), len(data))
	}
	if string(bs) != string(data) {
		t.Fatalf("content mismatch")
	}
	if last.TotalSize != int64(len(data)) || last.DownloadedSize != int64(len(data)) || last.Percent != 100 {
		t.Errorf("unexpected final progress: %+v", last)
	}
}

func TestDownloadOverwritesExisting(t *testing.T) {
	server := makeServer([]byte("new"))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "file.mp4")
	if err := os.WriteFile(out, []byte("old and longer"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := New(nil, nil, nil).Download(context.Background(), server.URL, out); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if bs, _ := os.ReadFile(out); string(bs) != "new" {
		t.Errorf("got %q", bs)
	}
}

func TestDownloadRemovesPartialFile(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "HTTP status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "Truncated body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Length", "1000")
				_, _ = w.Write([]byte("only a few bytes"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			out := filepath.Join(t.TempDir(), "file.mp4")
			err := New(client.New(), nil, nil).Download(context.Background(), server.URL, out)
			if !errors.Is(err, errs.ErrDownloadFailed) {
				t.Fatalf("Expected ErrDownloadFailed, got %v", err)
			}
			if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
				t.Errorf("partial file should be removed, stat err = %v", statErr)
			}
		})
	}
}

func TestDownloadUnreachable(t *testing.T) {
	out := filepath.Join(t.TempDir(), "file.mp4")
	err := New(nil, nil, nil).Download(context.Background(), "http://127.0.0.1:1/file.mp4", out)
	if !errors.Is(err, errs.ErrDownloadFailed) {
		t.Fatalf("Expected ErrDownloadFailed, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("file should not exist after transport error")
	}
}

func TestDownloadBadDestination(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "file.mp4")
	if err := New(nil, nil, nil).Download(context.Background(), "http://127.0.0.1:1/x", out); !errors.Is(err, errs.ErrDownloadFailed) {
		t.Fatalf("Expected ErrDownloadFailed, got %v", err)
	}
}

func TestDownloadWithLimiter(t *testing.T) {
	data := []byte("rate limited payload")
	server := makeServer(data)
	defer server.Close()

	out := filepath.Join(t.TempDir(), "file.mp4")
	dl := New(nil, nil, throttle.NewLimiter(1<<20))
	if err := dl.Download(context.Background(), server.URL, out); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if bs, _ := os.ReadFile(out); string(bs) != string(data) {
		t.Errorf("got %q", bs)
	}
}
