package estimate

import (
	"sync"
	"time"
)

// Ticker is the advisory elapsed-time clock for one in-flight submission.
// It ticks at one-second resolution and must be stopped the moment the job
// leaves the in-flight phase, however inaccurate the estimate turns out.
type Ticker struct {
	estimated int

	mu      sync.Mutex
	elapsed int

	done     chan struct{}
	stopOnce sync.Once
}

// Start begins an advisory clock against the given estimate.
func Start(estimatedSeconds int) *Ticker {
	return start(estimatedSeconds, time.Second)
}

func start(estimatedSeconds int, resolution time.Duration) *Ticker {
	if estimatedSeconds < 1 {
		estimatedSeconds = 1
	}
	t := &Ticker{
		estimated: estimatedSeconds,
		done:      make(chan struct{}),
	}
	go t.loop(resolution)
	return t
}

func (t *Ticker) loop(resolution time.Duration) {
	tick := time.NewTicker(resolution)
	defer tick.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-tick.C:
			t.mu.Lock()
			t.elapsed++
			t.mu.Unlock()
		}
	}
}

// Elapsed returns whole seconds since the clock started.
func (t *Ticker) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Estimated returns the estimate the clock was started with.
func (t *Ticker) Estimated() int {
	return t.estimated
}

// Fill returns the synthetic progress-bar fill, capped below 100 so the bar
// never claims completion the server has not reported.
func (t *Ticker) Fill() int {
	t.mu.Lock()
	elapsed := t.elapsed
	t.mu.Unlock()

	fill := elapsed * 100 / t.estimated
	if fill > FillCap {
		fill = FillCap
	}
	return fill
}

// Stop halts the clock immediately. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// Stopped reports whether Stop has been called.
func (t *Ticker) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
