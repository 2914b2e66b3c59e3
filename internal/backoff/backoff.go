package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	baseMs = 1_000
	capMs  = 30_000
)

// Source is the random source used for jitter. *rand.Rand satisfies it.
type Source interface {
	Int64N(n int64) int64
}

type globalSource struct{}

func (globalSource) Int64N(n int64) int64 { return rand.Int64N(n) }

// Policy computes jittered exponential retry delays.
type Policy struct {
	src Source
}

// New returns a policy backed by the process-wide random source.
func New() *Policy {
	return &Policy{src: globalSource{}}
}

// NewWithSource returns a policy with a caller-provided random source, for
// deterministic tests.
func NewWithSource(src Source) *Policy {
	if src == nil {
		src = globalSource{}
	}
	return &Policy{src: src}
}

// CapMs returns min(30000, 1000 * 2^attempt) in milliseconds.
func CapMs(attempt int) int64 {
	if attempt < 0 {
		attempt = 0
	}
	// 2^5 * 1000 already exceeds the cap
	if attempt >= 5 {
		return capMs
	}
	exp := int64(baseMs) << uint(attempt)
	if exp > capMs {
		return capMs
	}
	return exp
}

// Delay returns a uniformly random duration in [max(1, cap/2), cap) ms.
func (p *Policy) Delay(attempt int) time.Duration {
	expMs := CapMs(attempt)
	lo := expMs / 2
	if lo < 1 {
		lo = 1
	}
	span := expMs - lo
	if span <= 0 {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+p.src.Int64N(span)) * time.Millisecond
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
