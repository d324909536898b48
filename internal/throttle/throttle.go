// Package throttle limits transfer throughput in bytes per second.
package throttle

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewLimiter returns a byte-rate limiter for bytesPerSecond, or nil when the
// rate is not positive (unlimited). The burst equals one second of traffic.
func NewLimiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(bytesPerSecond)
	if int64(burst) != bytesPerSecond || burst <= 0 {
		burst = int(^uint(0) >> 1)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

// Reader delays reads so that throughput stays within the limiter's rate.
// A nil limiter makes Reader a pass-through.
type Reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// NewReader wraps r. The limiter may be shared by several readers.
func NewReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &Reader{ctx: ctx, r: r, limiter: limiter}
}

func (tr *Reader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n > 0 {
		if werr := wait(tr.ctx, tr.limiter, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// wait splits n into burst-sized reservations; WaitN rejects n > burst.
func wait(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
