package connection

import (
	"sync"
	"time"
)

// Clock schedules the manager's heartbeat and reconnect callbacks.
type Clock interface {
	// AfterFunc calls f once after d.
	AfterFunc(d time.Duration, f func()) Timer

	// TickFunc calls f every d until stopped.
	TickFunc(d time.Duration, f func()) Timer
}

// Timer cancels a scheduled callback.
type Timer interface {
	Stop() bool
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (systemClock) TickFunc(d time.Duration, f func()) Timer {
	t := &tickTimer{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go t.run(f)
	return t
}

// tickTimer runs f on its own goroutine for every tick.
type tickTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickTimer) run(f func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			f()
		}
	}
}

func (t *tickTimer) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}

// timerSlot owns at most one live timer. Each installed timer gets a fresh
// generation; a callback whose generation no longer matches was superseded
// (it raced with stop or replace) and must do nothing.
//
// Not safe for concurrent use; guarded by the manager mutex.
type timerSlot struct {
	timer Timer
	gen   uint64
}

// replace stops the current timer, if any, then installs the timer returned
// by start. start receives the generation its callback must present.
func (s *timerSlot) replace(start func(gen uint64) Timer) {
	s.stop()
	s.timer = start(s.gen)
}

// stop cancels the current timer and invalidates its generation.
func (s *timerSlot) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// armed reports whether a timer is installed.
func (s *timerSlot) armed() bool {
	return s.timer != nil
}

// current reports whether gen belongs to the installed timer.
func (s *timerSlot) current(gen uint64) bool {
	return s.timer != nil && s.gen == gen
}

// take consumes a one-shot timer that fired. It returns false when the
// callback was superseded.
func (s *timerSlot) take(gen uint64) bool {
	if !s.current(gen) {
		return false
	}
	s.timer = nil
	s.gen++
	return true
}
