// Package heartbeat implements the liveness driver: periodic heartbeat
// sends, acknowledgement tracking, and missed-ack detection, using the
// same atomic-field concurrency idiom as the rest of the session. It is
// a standalone type; the session creates one per connection attempt.
package heartbeat

import (
	"context"
	"sync/atomic"
	"time"
)

// Sender sends one HEARTBEAT frame carrying seq on the live socket. It
// must still observe the global token bucket; that is the
// caller's responsibility, not the driver's.
type Sender func(seq int64) error

// MissHandler is invoked when a heartbeat tick finds the previous one
// unacknowledged. The driver does not disconnect itself — that is a
// session-level decision — it only reports the failure.
type MissHandler func()

// Driver tracks heartbeat timing and ack state for one socket's
// lifetime. A Driver is created fresh per connection attempt and torn
// down (Stop) whenever the socket is.
type Driver struct {
	send       Sender
	onMiss     MissHandler
	currentSeq func() int64

	acked      atomic.Bool
	lastSentMs atomic.Int64
	lastRecvMs atomic.Int64

	timer *time.Timer
	stopC chan struct{}
}

// New builds a Driver. currentSeq supplies the session's current
// sequence number at the moment each heartbeat is sent, matching the
// teacher's HeartbeatMessage.D payload.
func New(send Sender, onMiss MissHandler, currentSeq func() int64) *Driver {
	d := &Driver{send: send, onMiss: onMiss, currentSeq: currentSeq}
	d.acked.Store(true)
	return d
}

// Start arms the periodic timer at interval and sends one immediate
// heartbeat, the HELLO handling. Any previously armed timer
// is cleared first.
func (d *Driver) Start(ctx context.Context, interval time.Duration) {
	d.Stop()

	stopC := make(chan struct{})
	timer := time.NewTimer(interval)
	d.stopC = stopC
	d.timer = timer

	go d.loop(ctx, interval, timer, stopC)

	d.sendNow()
}

// loop works on its own copies of the timer and stop channel, since
// Stop clears the Driver's fields from another goroutine.
func (d *Driver) loop(ctx context.Context, interval time.Duration, timer *time.Timer, stopC <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopC:
			return
		case <-timer.C:
			d.tick()
			timer.Reset(interval)
		}
	}
}

// tick is the periodic heartbeat check: if the previous beat was never
// acked, report a miss; otherwise send the next one.
func (d *Driver) tick() {
	if !d.acked.Load() {
		if d.onMiss != nil {
			d.onMiss()
		}
		return
	}
	d.sendNow()
}

// ServerRequested handles a server-initiated HEARTBEAT op (opcode
// Heartbeat inbound): send one immediate heartbeat without resetting
// the tick phase.
func (d *Driver) ServerRequested() {
	d.sendNow()
}

func (d *Driver) sendNow() {
	d.acked.Store(false)
	d.lastSentMs.Store(time.Now().UnixMilli())
	if d.send != nil {
		d.send(d.currentSeq())
	}
}

// Ack records a HEARTBEAT_ACK from the server.
func (d *Driver) Ack() {
	d.acked.Store(true)
	d.lastRecvMs.Store(time.Now().UnixMilli())
}

// Acked reports whether the most recently sent heartbeat has been
// acknowledged.
func (d *Driver) Acked() bool {
	return d.acked.Load()
}

// Latency returns the measured round-trip latency, or (0, false) if
// either endpoint of the measurement is unknown or infinite.
func (d *Driver) Latency() (time.Duration, bool) {
	sent := d.lastSentMs.Load()
	recv := d.lastRecvMs.Load()
	if sent == 0 || recv == 0 {
		return 0, false
	}
	return time.Duration(recv-sent) * time.Millisecond, true
}

// Stop clears the timer. Safe to call on a never-started or
// already-stopped Driver.
func (d *Driver) Stop() {
	if d.stopC != nil {
		close(d.stopC)
		d.stopC = nil
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
