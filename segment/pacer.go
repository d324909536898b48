package segment

import (
	"math/rand"
	"time"
)

const (
	DefaultMinDelay = 250 * time.Millisecond
	DefaultMaxDelay = 2 * time.Second
)

// Pacer decides how long to wait before fetching segment index.
type Pacer interface {
	Delay(index int) time.Duration
}

// JitterPacer waits a uniformly random duration in [Min, Max].
type JitterPacer struct {
	Min time.Duration
	Max time.Duration
}

// NewJitterPacer returns a JitterPacer with the default bounds.
func NewJitterPacer() JitterPacer {
	return JitterPacer{Min: DefaultMinDelay, Max: DefaultMaxDelay}
}

// Delay implements Pacer.
func (p JitterPacer) Delay(int) time.Duration {
	lo, hi := p.Min, p.Max
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo+1)))
}

type noDelay struct{}

func (noDelay) Delay(int) time.Duration { return 0 }

// NoDelay never waits.
var NoDelay Pacer = noDelay{}
