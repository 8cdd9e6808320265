package room

import (
	"fmt"
	"sync"
	"time"
)

// Warning thresholds, in seconds of remaining time.
const (
	warnTwoMinutes  = 120
	warnHalfMinute  = 30
	timerTickPeriod = time.Second
)

// TimerEvent is one tick of the session clock.
type TimerEvent struct {
	Elapsed   int    // seconds since actual start
	Remaining int    // seconds left; negative in overtime
	Warning   string // "2m" or "30s" on the tick that crosses a threshold
	Overtime  bool
	Display   string // mm:ss, or +mm:ss in overtime
}

// Timer tracks elapsed and remaining time while a session is active.
// Elapsed is always derived from the server-recorded start time, never
// accumulated locally, so a remount or reconnect cannot double-count.
// Crossing zero never stops anything; it only flips the display.
type Timer struct {
	start    time.Time
	duration time.Duration
	now      func() time.Time

	mu       sync.Mutex
	warned2m bool
	warned30 bool

	events   chan TimerEvent
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTimer creates a timer for a session that actually started at start and
// is scheduled for the given duration.
func NewTimer(start time.Time, duration time.Duration) *Timer {
	return &Timer{
		start:    start,
		duration: duration,
		now:      time.Now,
		events:   make(chan TimerEvent, 8),
		stop:     make(chan struct{}),
	}
}

// Events delivers one event per second while the timer runs. Delivery is
// non-blocking; a slow consumer misses ticks, never stalls the timer.
func (t *Timer) Events() <-chan TimerEvent {
	return t.events
}

// Run ticks until Stop. Call from its own goroutine.
func (t *Timer) Run() {
	ticker := time.NewTicker(timerTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			ev := t.Tick(t.now())
			select {
			case t.events <- ev:
			default:
			}
		}
	}
}

// Tick computes the event for the given instant, firing each threshold
// warning exactly once.
func (t *Timer) Tick(now time.Time) TimerEvent {
	elapsed := int(now.Sub(t.start) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := int(t.duration/time.Second) - elapsed

	ev := TimerEvent{
		Elapsed:   elapsed,
		Remaining: remaining,
		Overtime:  remaining < 0,
		Display:   FormatClock(elapsed, int(t.duration/time.Second)),
	}

	t.mu.Lock()
	if remaining <= warnTwoMinutes && remaining > warnHalfMinute && !t.warned2m {
		t.warned2m = true
		ev.Warning = "2m"
	}
	if remaining <= warnHalfMinute && remaining >= 0 && !t.warned30 {
		t.warned30 = true
		ev.Warning = "30s"
	}
	t.mu.Unlock()

	return ev
}

// Stop halts the ticker. Idempotent.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// FormatClock renders elapsed time against the scheduled duration: mm:ss
// while within it, +mm:ss once over.
func FormatClock(elapsedSeconds, durationSeconds int) string {
	over := elapsedSeconds - durationSeconds
	if over > 0 {
		return fmt.Sprintf("+%02d:%02d", over/60, over%60)
	}
	return fmt.Sprintf("%02d:%02d", elapsedSeconds/60, elapsedSeconds%60)
}
