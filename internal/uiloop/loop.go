// Package uiloop abstracts the single-threaded event loop periodic
// callbacks run on.
//
// All callbacks scheduled on one Loop execute on the same goroutine,
// which is what lets session state be read by callbacks without
// locking. The production loop is the terminal program's tick stream;
// Ticker is a standalone implementation for headless use and tests.
package uiloop

import (
	"sync"
	"sync/atomic"
	"time"
)

// Loop schedules work onto a single-threaded event loop.
type Loop interface {
	// SchedulePeriodic runs fn on the loop every period until fn
	// returns false or the handle is stopped.
	SchedulePeriodic(fn func() bool, period time.Duration) Handle

	// RunOnNextTick runs fn once on the loop's next iteration.
	RunOnNextTick(fn func())
}

// Handle cancels a periodic callback. Stop is idempotent and safe to
// call from any goroutine, including from inside the callback.
type Handle interface {
	Stop()
}

type periodicTask struct {
	fn      func() bool
	period  time.Duration
	nextDue time.Time
	stopped atomic.Bool
}

func (p *periodicTask) Stop() { p.stopped.Store(true) }

// Ticker is a Loop driven by a single goroutine. Callbacks run
// strictly sequentially.
type Ticker struct {
	mu       sync.Mutex
	periodic []*periodicTask
	oneShot  []func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewTicker starts a loop ticking at the given resolution. Periodic
// callbacks fire no more often than their own period allows.
func NewTicker(resolution time.Duration) *Ticker {
	tk := &Ticker{done: make(chan struct{})}
	go tk.run(resolution)
	return tk
}

// NewManualTicker returns a loop with no driving goroutine. The caller
// advances it with Tick; tests use this for determinism.
func NewManualTicker() *Ticker {
	return &Ticker{done: make(chan struct{})}
}

func (tk *Ticker) run(resolution time.Duration) {
	tick := time.NewTicker(resolution)
	defer tick.Stop()
	for {
		select {
		case <-tk.done:
			return
		case now := <-tick.C:
			tk.Tick(now)
		}
	}
}

// Tick runs everything that is due. Exported so tests can drive the
// loop deterministically with synthetic times.
func (tk *Ticker) Tick(now time.Time) {
	tk.mu.Lock()
	oneShot := tk.oneShot
	tk.oneShot = nil

	var due []*periodicTask
	for _, p := range tk.periodic {
		if !p.stopped.Load() && !now.Before(p.nextDue) {
			due = append(due, p)
		}
	}
	tk.mu.Unlock()

	for _, fn := range oneShot {
		fn()
	}
	for _, p := range due {
		if p.stopped.Load() {
			continue
		}
		if !p.fn() {
			p.stopped.Store(true)
			continue
		}
		p.nextDue = now.Add(p.period)
	}

	tk.mu.Lock()
	kept := tk.periodic[:0]
	for _, p := range tk.periodic {
		if !p.stopped.Load() {
			kept = append(kept, p)
		}
	}
	tk.periodic = kept
	tk.mu.Unlock()
}

// SchedulePeriodic implements Loop. The first run happens on the next
// tick at or after one period from now.
func (tk *Ticker) SchedulePeriodic(fn func() bool, period time.Duration) Handle {
	p := &periodicTask{fn: fn, period: period, nextDue: time.Now().Add(period)}
	tk.mu.Lock()
	tk.periodic = append(tk.periodic, p)
	tk.mu.Unlock()
	return p
}

// RunOnNextTick implements Loop.
func (tk *Ticker) RunOnNextTick(fn func()) {
	tk.mu.Lock()
	tk.oneShot = append(tk.oneShot, fn)
	tk.mu.Unlock()
}

// Stop halts the loop goroutine. Pending callbacks do not run.
func (tk *Ticker) Stop() {
	tk.stopOnce.Do(func() { close(tk.done) })
}
