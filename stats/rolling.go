// Package stats keeps the rolling inference statistics of one detector session.
package stats

import "time"

// Rolling accumulates latency and frame counts since the last Reset. It is
// owned by the pipeline worker and is not safe for concurrent use.
type Rolling struct {
	now    func() time.Time
	start  time.Time
	total  time.Duration
	frames int64
}

func NewRolling() *Rolling {
	return NewRollingWithClock(time.Now)
}

// NewRollingWithClock is NewRolling with an injectable clock.
func NewRollingWithClock(now func() time.Time) *Rolling {
	r := &Rolling{now: now}
	r.Reset()
	return r
}

// Reset zeroes the counters and restarts the session clock.
func (r *Rolling) Reset() {
	r.start = r.now()
	r.total = 0
	r.frames = 0
}

func (r *Rolling) Add(latency time.Duration) {
	r.total += latency
	r.frames++
}

func (r *Rolling) Frames() int64 { return r.frames }

// AverageLatency is total latency over frames; ok is false before the first frame.
func (r *Rolling) AverageLatency() (avg time.Duration, ok bool) {
	if r.frames == 0 {
		return 0, false
	}
	return r.total / time.Duration(r.frames), true
}

// FramesPerSecond divides frames by elapsed seconds once more than a second
// has passed. Before that the raw frame count is reported.
func (r *Rolling) FramesPerSecond() float64 {
	elapsed := r.now().Sub(r.start).Seconds()
	if elapsed > 1 {
		return float64(r.frames) / elapsed
	}
	return float64(r.frames)
}
