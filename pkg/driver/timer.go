package driver

import (
	"math/rand"
	"time"
)

// Timer is a resettable one-shot alarm; RealTimer backs it with
// time.Timer, and tests can substitute a fake that fires on command.
type Timer interface {
	Reset(d time.Duration)
	Stop()
	C() <-chan time.Time
}

// RealTimer wraps a time.Timer, started stopped until the first Reset.
type RealTimer struct {
	t *time.Timer
}

// NewRealTimer returns a Timer that has not yet been armed.
func NewRealTimer() *RealTimer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &RealTimer{t: t}
}

func (r *RealTimer) Reset(d time.Duration) {
	if !r.t.Stop() {
		select {
		case <-r.t.C:
		default:
		}
	}
	r.t.Reset(d)
}

func (r *RealTimer) Stop() { r.t.Stop() }

func (r *RealTimer) C() <-chan time.Time { return r.t.C }

// ElectionTimeoutDuration computes the randomised follower/candidate
// election timeout named in spec.md §6: uniform(1x, 4x) broadcast time,
// added to 2x broadcast for a follower or 4x broadcast for a candidate.
func ElectionTimeoutDuration(broadcast time.Duration, isCandidate bool) time.Duration {
	jitter := time.Duration(rand.Int63n(int64(3*broadcast))) + broadcast // uniform in [1x, 4x)
	base := 2 * broadcast
	if isCandidate {
		base = 4 * broadcast
	}
	return base + jitter
}

// DefaultAwaitConditionTimeout is spec.md §6's default.
const DefaultAwaitConditionTimeout = 30 * time.Second
