package types

import (
	"errors"
	"testing"
)

func TestInferKind(t *testing.T) {
	tests := []struct {
		url  string
		want JobKind
	}{
		{"https://cdn.example.com/v/playlist.json?base64_init=1", KindSegmented},
		{"https://cdn.example.com/master.m3u8", KindSegmented},
		{"https://cdn.example.com/files/clip.mp4?token=abc", KindDirect},
		{"https://cdn.example.com/files/CLIP.MOV", KindDirect},
		{"https://cdn.example.com/files/", KindSegmented},
		{"://bad", KindSegmented},
	}
	for _, tt := range tests {
		if got := InferKind(tt.url); got != tt.want {
			t.Errorf("InferKind(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParseJobKind(t *testing.T) {
	tests := []struct {
		kind    string
		url     string
		want    JobKind
		wantErr bool
	}{
		{"segmented", "https://cdn.example.com/a.mp4", KindSegmented, false},
		{"DIRECT", "https://cdn.example.com/playlist.json", KindDirect, false},
		{"", "https://cdn.example.com/a.mp4", KindDirect, false},
		{"", "https://cdn.example.com/playlist.json", KindSegmented, false},
		{"torrent", "https://cdn.example.com/a.mp4", "", true},
	}
	for _, tt := range tests {
		got, err := ParseJobKind(tt.kind, tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseJobKind(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseJobKind(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestResultOK(t *testing.T) {
	if !(Result{JobID: "a", Skipped: true}).OK() {
		t.Error("skipped result should be OK")
	}
	if (Result{JobID: "a", Err: errors.New("boom")}).OK() {
		t.Error("failed result should not be OK")
	}
}

func TestJobZeroValues(t *testing.T) {
	var job Job
	if job.ID != "" || job.Kind != "" || job.URL != "" || job.Dir != "" || job.Name != "" {
		t.Errorf("unexpected zero job: %+v", job)
	}
}
