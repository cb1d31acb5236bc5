package helpers

import (
	"sync/atomic"
	"time"

	"github.com/temoto/atomic_clock"
)

// Limited exponential backoff for reconnect delays.
// Failure() returns the delay to wait now and multiplies next one by K.
// Reset() brings next delay back to Min.
//
// Use scenario:
// for {
//   err := op()
//   if err == nil { backoff.Reset(); continue }
//   time.Sleep(backoff.Failure())
// }
//
// With Min=10s Max=60s K=2 consecutive failures wait 10s 20s 40s 60s 60s...
type Backoff struct {
	next int64 // atomic align
	last atomic_clock.Clock

	Min time.Duration
	Max time.Duration
	K   float32       // default=2
	Res time.Duration // delay resolution for nice logs, default=1ms
}

func NewBackoff(min, max time.Duration) *Backoff {
	if min <= 0 {
		panic("code error backoff min must be positive")
	}
	if max < min {
		max = min
	}
	return &Backoff{Min: min, Max: max, K: 2}
}

// Current delay, which next Failure() would return.
func (b *Backoff) Current() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	return b.limit(next)
}

func (b *Backoff) Failure() time.Duration {
	delay := b.Current()
	k := b.K
	if k <= 1 {
		k = 2
	}
	next := b.limit(time.Duration(float64(delay) * float64(k)))
	atomic.StoreInt64(&b.next, int64(next))
	b.last.SetNow()
	return delay
}

func (b *Backoff) Reset() {
	atomic.StoreInt64(&b.next, int64(b.Min))
}

// Time passed since last Failure(), zero if never failed.
func (b *Backoff) SinceFailure() time.Duration {
	if b.last.IsZero() {
		return 0
	}
	return atomic_clock.Since(&b.last)
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
