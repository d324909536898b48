package mediamirror

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/mediamirror/errs"
	"github.com/ytget/mediamirror/segment"
	"github.com/ytget/mediamirror/types"
)

// concatMuxer stands in for a real muxer: it writes video bytes, a separator
// and audio bytes.
type concatMuxer struct{}

func (concatMuxer) Mux(_ context.Context, videoPath, audioPath, outPath string) error {
	v, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	a, err := os.ReadFile(audioPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, append(append(v, '|'), a...), 0o644)
}

type failingMuxer struct{}

func (failingMuxer) Mux(context.Context, string, string, string) error {
	return errors.New("unsupported codec")
}

const helloManifest = `{
  "clip_id": "hello",
  "base_url": "../",
  "video": [
    {"id": "v-low", "avg_bitrate": 100, "base_url": "low/", "init_segment": "", "segments": [{"url": "a"}]},
    {"id": "v", "avg_bitrate": 500, "base_url": "video/", "init_segment": "SGVsbG8=", "segments": [{"url": "a"}, {"url": "b"}]}
  ],
  "audio": [
    {"id": "a", "avg_bitrate": 128, "base_url": "audio/", "init_segment": "SGVsbG8=", "segments": [{"url": "x"}]}
  ]
}`

const videoOnlyManifest = `{
  "base_url": "",
  "video": [{"id": "v", "avg_bitrate": 1, "base_url": "video/", "init_segment": "SGVsbG8=", "segments": [{"url": "a"}]}],
  "audio": []
}`

const singleTrackPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXT-X-MAP:URI="video/init.mp4"
#EXTINF:4.000,
video/a
#EXT-X-ENDLIST
`

type origin struct {
	*httptest.Server
	mu       sync.Mutex
	requests []string
	calls    int32
}

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{}
	mux := http.NewServeMux()
	mux.HandleFunc("/clip/sep/playlist.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("base64_init") != "1" {
			http.Error(w, "inline init required", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(helloManifest))
	})
	mux.HandleFunc("/solo/playlist.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(videoOnlyManifest))
	})
	mux.HandleFunc("/solo/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(singleTrackPlaylist))
	})
	mux.HandleFunc("/broken/playlist.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{"))
	})
	segments := map[string]string{
		"/clip/video/a":        "-va-",
		"/clip/video/b":        "-vb-",
		"/clip/audio/x":        "-ax-",
		"/solo/video/a":        "-solo-",
		"/solo/video/init.mp4": "Hello",
		"/files/clip.mp4":      "PROGRESSIVE",
	}
	for p, body := range segments {
		body := body
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&o.calls, 1)
		o.mu.Lock()
		o.requests = append(o.requests, r.URL.Path)
		o.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(o.Close)
	return o
}

func newMirror() *Mirror {
	return New().WithPacer(segment.NoDelay).WithMuxer(concatMuxer{})
}

func TestFetchSegmented_HelloScenario(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	res, err := newMirror().FetchSegmented(context.Background(), o.URL+"/clip/sep/playlist.json", dir, "My clip")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, filepath.Join(dir, "My clip.mp4"), res.Output)

	data, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	assert.Equal(t, "Hello-va--vb-|Hello-ax-", string(data))

	assert.NoFileExists(t, filepath.Join(dir, "My clip.m4v"))
	assert.NoFileExists(t, filepath.Join(dir, "My clip.m4a"))
	assert.NoFileExists(t, filepath.Join(dir, ".My clip.m4v~"))
	assert.NoFileExists(t, filepath.Join(dir, ".My clip.m4a~"))

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, []string{"/clip/sep/playlist.json", "/clip/video/a", "/clip/video/b", "/clip/audio/x"}, o.requests)
}

func TestFetchSegmented_SkipsCompletedOutput(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("done"), 0o644))

	res, err := newMirror().FetchSegmented(context.Background(), o.URL+"/clip/sep/playlist.json", dir, "clip")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, atomic.LoadInt32(&o.calls))
}

func TestFetchSegmented_ReusesCompletedTrack(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()
	// the video track finished in an earlier run; only audio is fetched
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.m4v"), []byte("Hello-va--vb-"), 0o644))

	res, err := newMirror().FetchSegmented(context.Background(), o.URL+"/clip/sep/playlist.json", dir, "clip")
	require.NoError(t, err)

	data, _ := os.ReadFile(res.Output)
	assert.Equal(t, "Hello-va--vb-|Hello-ax-", string(data))
	o.mu.Lock()
	defer o.mu.Unlock()
	assert.NotContains(t, o.requests, "/clip/video/a")
}

func TestFetchSegmented_MuxFailureKeepsTracks(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	_, err := newMirror().WithMuxer(failingMuxer{}).FetchSegmented(context.Background(), o.URL+"/clip/sep/playlist.json", dir, "clip")
	assert.ErrorIs(t, err, errs.ErrMuxFailed)
	assert.FileExists(t, filepath.Join(dir, "clip.m4v"))
	assert.FileExists(t, filepath.Join(dir, "clip.m4a"))
	assert.NoFileExists(t, filepath.Join(dir, "clip.mp4"))
}

func TestFetchSegmented_MissingAudioRendition(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	res, err := newMirror().FetchSegmented(context.Background(), o.URL+"/solo/playlist.json", dir, "solo")
	assert.ErrorIs(t, err, errs.ErrNoRendition)
	assert.Nil(t, res)
	for _, name := range []string{"solo.mp4", "solo.m4v", "solo.m4a"} {
		assert.NoFileExists(t, filepath.Join(dir, name))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	assert.NotContains(t, o.requests, "/solo/video/a", "no segment should be fetched")
}

func TestFetchSegmented_SingleTrackPlaylist(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	res, err := newMirror().FetchSegmented(context.Background(), o.URL+"/solo/index.m3u8", dir, "solo")
	require.NoError(t, err)
	data, _ := os.ReadFile(res.Output)
	assert.Equal(t, "Hello-solo-", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "solo.m4v"))
}

func TestFetchSegmented_Errors(t *testing.T) {
	o := newOrigin(t)

	_, err := newMirror().FetchSegmented(context.Background(), o.URL+"/clip/sep/playlist.json", filepath.Join(t.TempDir(), "missing"), "clip")
	assert.ErrorIs(t, err, errs.ErrInvalidDestination)

	_, err = newMirror().FetchSegmented(context.Background(), o.URL+"/broken/playlist.json", t.TempDir(), "clip")
	assert.ErrorIs(t, err, errs.ErrManifestInvalid)

	_, err = newMirror().FetchSegmented(context.Background(), o.URL+"/nowhere/playlist.json", t.TempDir(), "clip")
	assert.ErrorIs(t, err, errs.ErrManifestUnavailable)
}

func TestFetchDirect(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	var got []types.Progress
	m := newMirror().WithProgress(func(p types.Progress) { got = append(got, p) })
	res, err := m.FetchDirect(context.Background(), o.URL+"/files/clip.mp4", dir, "direct")
	require.NoError(t, err)

	data, _ := os.ReadFile(res.Output)
	assert.Equal(t, "PROGRESSIVE", string(data))
	require.NotEmpty(t, got)
	assert.Equal(t, types.StageDirect, got[len(got)-1].Stage)
	assert.Equal(t, int64(len("PROGRESSIVE")), got[len(got)-1].Bytes)
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	jobs := []types.Job{
		{ID: "bad", Kind: types.KindSegmented, URL: o.URL + "/broken/playlist.json", Dir: dir, Name: "bad"},
		{ID: "good", URL: o.URL + "/clip/sep/playlist.json", Dir: dir, Name: "good"},
		{ID: "direct", URL: o.URL + "/files/clip.mp4", Dir: dir, Name: "direct"},
	}
	results := newMirror().Run(context.Background(), jobs)
	require.Len(t, results, 3)

	assert.Equal(t, "bad", results[0].JobID)
	assert.ErrorIs(t, results[0].Err, errs.ErrManifestInvalid)
	assert.Equal(t, "good", results[1].JobID)
	assert.NoError(t, results[1].Err)
	assert.FileExists(t, filepath.Join(dir, "good.mp4"))
	assert.Equal(t, "direct", results[2].JobID)
	assert.FileExists(t, filepath.Join(dir, "direct.mp4"))

	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.False(t, IsRetryable(failed[0].Err))
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := newMirror().Run(ctx, []types.Job{{ID: "a"}, {ID: "b"}})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestFetch_UnknownKind(t *testing.T) {
	_, err := newMirror().Fetch(context.Background(), types.Job{Kind: "torrent"})
	assert.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errs.ErrSegmentFailed))
	assert.True(t, IsRetryable(errs.ErrMuxFailed))
	assert.False(t, IsRetryable(errs.ErrNoRendition))
	assert.False(t, IsRetryable(nil))
}

func TestWithRateLimit(t *testing.T) {
	m := New().WithRateLimit(-5)
	assert.Zero(t, m.options.RateLimitBps)
	assert.Nil(t, m.limiter)

	m.WithRateLimit(1 << 20)
	assert.NotNil(t, m.limiter)
}
