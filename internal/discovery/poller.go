package discovery

import (
	"context"
	"time"

	"github.com/obsproc/quicklook/internal/datastore"
	"github.com/obsproc/quicklook/internal/uiloop"
)

// Applier receives discovery outcomes on the UI loop. Implementations
// own UI state and need no locking: every call happens on the loop
// goroutine.
type Applier interface {
	// ApplyVisits delivers a successful run's visits, newest first.
	// newCount is how many were not in the previous successful run.
	ApplyVisits(visits []datastore.Visit, newCount int)

	// ApplyEmpty signals a run that found no visits.
	ApplyEmpty()

	// ApplyError signals a failed run.
	ApplyError(err error)
}

// Poller bridges a Worker to the UI loop. Each kicked run gets a
// periodic poll that consumes the run's terminal status exactly once
// and then deschedules itself.
type Poller struct {
	worker  *Worker
	applier Applier
	loop    uiloop.Loop
	period  time.Duration
}

// NewPoller returns a poller delivering w's results to applier on
// loop, checking every period.
func NewPoller(w *Worker, applier Applier, loop uiloop.Loop, period time.Duration) *Poller {
	return &Poller{worker: w, applier: applier, loop: loop, period: period}
}

// Kick requests a discovery run for date and attaches a poll for its
// result. Returns false when a run is already in flight; the existing
// poll will deliver that run's result, so no new poll is attached.
func (p *Poller) Kick(ctx context.Context, date string) bool {
	if !p.worker.Request(ctx, date) {
		return false
	}
	p.loop.SchedulePeriodic(p.check, p.period)
	return true
}

// check runs on the UI loop. Returning false deschedules the poll.
func (p *Poller) check() bool {
	st, ok := p.worker.Take()
	if !ok {
		return true // still running, keep polling
	}
	switch st.State {
	case StateSuccess:
		p.applier.ApplyVisits(st.Visits, st.NewCount)
	case StateEmpty:
		p.applier.ApplyEmpty()
	case StateError:
		p.applier.ApplyError(st.Err)
	}
	return false
}

// AutoRefresh schedules a recurring Kick every interval. Requests that
// land while a run is in flight are dropped, matching Kick. dateFn is
// evaluated on the UI loop at each refresh. Stop the returned handle
// to end the refresh cycle.
func (p *Poller) AutoRefresh(ctx context.Context, interval time.Duration, dateFn func() string) uiloop.Handle {
	return p.loop.SchedulePeriodic(func() bool {
		p.Kick(ctx, dateFn())
		return true
	}, interval)
}

// visitsEqual reports whether two visit slices hold the same sequence.
func visitsEqual(a, b []datastore.Visit) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
