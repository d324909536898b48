// Package mediamirror mirrors adaptive-streaming media to local MP4 files.
//
// A segmented job fetches a manifest, picks the highest-bitrate video and
// audio renditions, rebuilds each track segment by segment next to a marker
// file that makes interrupted runs restart cleanly, and multiplexes the two
// tracks into <name>.mp4. A direct job streams a single progressive file.
//
// Usage:
//
//	m := mediamirror.New().
//		WithRateLimit(2 << 20).
//		WithMuxer(mux.Native{})
//	res, err := m.FetchSegmented(ctx, "https://cdn.example.com/v/playlist.json", "/data", "My clip")
package mediamirror
