package throttle

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiter_Unlimited(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	assert.Nil(t, NewLimiter(-5))
}

func TestNewReader_NilLimiterPassesThrough(t *testing.T) {
	src := bytes.NewReader([]byte("abc"))
	assert.Same(t, io.Reader(src), NewReader(context.Background(), src, nil))
}

func TestReader_Throttles(t *testing.T) {
	limiter := NewLimiter(1000)
	require.NotNil(t, limiter)
	assert.Equal(t, 1000, limiter.Burst())

	payload := bytes.Repeat([]byte{'x'}, 1500)
	start := time.Now()
	got, err := io.ReadAll(NewReader(context.Background(), bytes.NewReader(payload), limiter))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	// 1000 bytes of burst, the remaining 500 need about half a second.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestReader_ChunksLargerThanBurst(t *testing.T) {
	limiter := NewLimiter(10_000)
	payload := bytes.Repeat([]byte{'y'}, 12_000)
	got, err := io.ReadAll(NewReader(context.Background(), bytes.NewReader(payload), limiter))
	require.NoError(t, err)
	assert.Len(t, got, len(payload))
}

func TestReader_ContextCancelled(t *testing.T) {
	limiter := NewLimiter(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := io.ReadAll(NewReader(ctx, bytes.NewReader(bytes.Repeat([]byte{'z'}, 100)), limiter))
	assert.Error(t, err)
}
