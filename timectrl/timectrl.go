package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController paces ticks.
type Mode int

const (
	// RealTime emits one tick per Interval of wall-clock time.
	RealTime Mode = iota
	// Accelerated emits ticks back to back without waiting.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case Accelerated:
		return "accelerated"
	default:
		return "realtime"
	}
}

// DefaultFPS is the tick rate used when none is configured.
const DefaultFPS = 60

// IntervalForFPS converts a frame rate into a tick interval, falling back to
// DefaultFPS for non-positive rates.
func IntervalForFPS(fps int) time.Duration {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}

// TimeController drives the animation frame clock and notifies registered
// listeners once per tick. Listeners run on the controller's goroutine, in
// registration order, so anything they touch has a single writer.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Interval  time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       uint64

	listeners []func(tick uint64, now time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, interval time.Duration, mode Mode) *TimeController {
	if interval <= 0 {
		interval = IntervalForFPS(DefaultFPS)
	}
	return &TimeController{
		StartTime:   start,
		Interval:    interval,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current clock time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime overrides the current clock time.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// Ticks returns the number of ticks emitted so far.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// AddListener registers a callback invoked on every tick. Listeners must be
// registered before Start or Run.
func (tc *TimeController) AddListener(fn func(tick uint64, now time.Time)) {
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration of clock time in a
// separate goroutine; a zero duration runs until the process exits. It
// returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		tc.loop(context.Background(), duration)
	}()
	return done
}

// Run ticks on the calling goroutine until ctx is cancelled.
func (tc *TimeController) Run(ctx context.Context) {
	tc.loop(ctx, 0)
}

func (tc *TimeController) loop(ctx context.Context, duration time.Duration) {
	tc.mu.Lock()
	now := tc.currentTime
	tc.mu.Unlock()

	elapsed := time.Duration(0)

	var tickC <-chan time.Time
	if tc.Mode == RealTime {
		ticker := time.NewTicker(tc.Interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		if duration > 0 && elapsed >= duration {
			return
		}
		if ctx.Err() != nil {
			return
		}

		if tickC != nil {
			select {
			case <-ctx.Done():
				return
			case <-tickC:
			}
		}

		now = now.Add(tc.Interval)
		elapsed += tc.Interval

		tc.mu.Lock()
		tc.currentTime = now
		tc.ticks++
		tick := tc.ticks
		tc.mu.Unlock()

		for _, fn := range tc.listeners {
			fn(tick, now)
		}
	}
}
