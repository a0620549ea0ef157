// Package ratelimit implements the fixed-window token bucket used to
// throttle outbound gateway frames.
//
// Unlike golang.org/x/time/rate's token-per-duration model, actions
// submitted while the bucket is exhausted are queued rather than
// blocked on, and are drained in submission order once the window
// rolls over. Queue is normally called only from the session's own
// goroutine, but the refill itself fires on its own timer goroutine,
// so a mutex guards the shared fields against that concurrent access.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a fixed-window limiter with a FIFO of deferred actions.
//
// Invariant: Remaining() is always in [0, capacity]. ResetAt moves
// forward in WindowMs steps whenever Remaining reaches 0.
type Bucket struct {
	capacity uint32
	window   time.Duration

	mu        sync.Mutex
	remaining uint32
	resetAt   time.Time
	queue     []func()

	timer *time.Timer
	now   func() time.Time
}

// New creates a bucket with the given capacity and window. The clock
// starts full: the first `capacity` actions run immediately.
func New(capacity uint32, window time.Duration) *Bucket {
	b := &Bucket{
		capacity:  capacity,
		window:    window,
		remaining: capacity,
		now:       time.Now,
	}
	b.resetAt = b.now().Add(window)
	return b
}

// Remaining reports the number of actions admissible before the next
// window rollover.
func (b *Bucket) Remaining() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Queue admits action immediately if the bucket has remaining capacity,
// otherwise appends it to the FIFO and arms the refill timer if it
// isn't already armed. Actions run in submission order.
func (b *Bucket) Queue(action func()) {
	b.mu.Lock()
	if b.remaining > 0 {
		b.remaining--
		b.mu.Unlock()
		action()
		return
	}

	b.queue = append(b.queue, action)
	b.armRefillLocked()
	b.mu.Unlock()
}

// armRefillLocked schedules the single refill wake at resetAt, if one
// isn't already pending. Callers must hold mu.
func (b *Bucket) armRefillLocked() {
	if b.timer != nil {
		return
	}
	delay := b.resetAt.Sub(b.now())
	if delay < 0 {
		delay = 0
	}
	b.timer = time.AfterFunc(delay, b.refill)
}

// refill resets remaining to capacity, advances resetAt by one window,
// and drains the queue up to the new remaining count. Runs on the
// timer's own goroutine.
func (b *Bucket) refill() {
	b.mu.Lock()
	b.timer = nil
	b.remaining = b.capacity
	b.resetAt = b.resetAt.Add(b.window)

	var toRun []func()
	for b.remaining > 0 && len(b.queue) > 0 {
		toRun = append(toRun, b.queue[0])
		b.queue = b.queue[1:]
		b.remaining--
	}

	if len(b.queue) > 0 {
		b.armRefillLocked()
	}
	b.mu.Unlock()

	for _, action := range toRun {
		action()
	}
}

// Close drops all queued actions silently and stops the refill timer.
// No error is surfaced; the socket-teardown path already signals
// disconnect to callers.
func (b *Bucket) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.queue = nil
}

// Pending returns the number of actions currently waiting for the next
// window. Exposed for tests and diagnostics.
func (b *Bucket) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
