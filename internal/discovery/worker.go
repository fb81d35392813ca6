package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/obsproc/quicklook/internal/cache"
	"github.com/obsproc/quicklook/internal/datastore"
	"github.com/obsproc/quicklook/internal/logging"
	"github.com/obsproc/quicklook/internal/metrics"
)

// State is the discovery worker's lifecycle phase.
type State int

const (
	// StateIdle means no run is in flight and no result is pending.
	StateIdle State = iota
	// StateRunning means a run is in flight.
	StateRunning
	// StateSuccess means a run finished with at least one visit.
	StateSuccess
	// StateEmpty means a run finished and found no visits.
	StateEmpty
	// StateError means a run failed.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateEmpty:
		return "empty"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the poll-observed outcome of one discovery run.
type Status struct {
	State    State
	Visits   []datastore.Visit
	NewCount int // visits not present in the previous successful run
	Err      error
}

// Terminal reports whether the status carries a finished outcome.
func (s Status) Terminal() bool {
	return s.State == StateSuccess || s.State == StateEmpty || s.State == StateError
}

// Worker runs discovery in the background and publishes each run's
// outcome into a single-slot mailbox.
//
// Worker never touches UI state. The UI loop polls Take on its own
// schedule and applies the result there; that is the only place
// results cross into the cooperative domain.
type Worker struct {
	store          datastore.Store
	baseCollection string
	validity       *cache.VisitValidityCache
	opts           Options
	timeout        time.Duration

	mu       sync.Mutex
	running  bool
	status   Status
	previous map[datastore.Visit]struct{}
}

// NewWorker returns a worker bound to one store and base collection.
// timeout bounds each run; zero means no bound.
func NewWorker(store datastore.Store, baseCollection string, vc *cache.VisitValidityCache, opts Options, timeout time.Duration) *Worker {
	return &Worker{
		store:          store,
		baseCollection: baseCollection,
		validity:       vc,
		opts:           opts,
		timeout:        timeout,
	}
}

// Request starts a discovery run for date unless one is already in
// flight, in which case the request is dropped. Returns whether a run
// was started. A pending unconsumed result is overwritten by the new
// run when it finishes.
func (w *Worker) Request(ctx context.Context, date string) bool {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		logging.Debug("Discovery already running, request dropped", "date", date)
		return false
	}
	w.running = true
	w.status = Status{State: StateRunning}
	w.mu.Unlock()

	go w.run(ctx, date)
	return true
}

func (w *Worker) run(ctx context.Context, date string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Discovery run panicked", "panic", r)
			w.finish(Status{State: StateError, Err: fmt.Errorf("discovery panicked: %v", r)})
		}
	}()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	visits, err := Discover(ctx, w.store, w.baseCollection, date, w.validity, w.opts)

	var st Status
	switch {
	case err != nil:
		logging.Warn("Discovery failed", "date", date, "error", err)
		metrics.DiscoveryRuns.WithLabelValues("error").Inc()
		st = Status{State: StateError, Err: err}
	case len(visits) == 0:
		metrics.DiscoveryRuns.WithLabelValues("empty").Inc()
		st = Status{State: StateEmpty}
	default:
		metrics.DiscoveryRuns.WithLabelValues("success").Inc()
		st = Status{State: StateSuccess, Visits: visits, NewCount: w.countNew(visits)}
		logging.Info("Discovery finished",
			"date", date,
			"visits", len(visits),
			"new", st.NewCount,
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
	w.finish(st)
}

func (w *Worker) countNew(visits []datastore.Visit) int {
	w.mu.Lock()
	previous := w.previous
	w.mu.Unlock()

	n := 0
	seen := make(map[datastore.Visit]struct{}, len(visits))
	for _, v := range visits {
		seen[v] = struct{}{}
		if _, ok := previous[v]; !ok {
			n++
		}
	}
	w.mu.Lock()
	w.previous = seen
	w.mu.Unlock()
	return n
}

func (w *Worker) finish(st Status) {
	w.mu.Lock()
	w.running = false
	w.status = st
	w.mu.Unlock()
}

// Status returns the current status without consuming it.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Take returns a terminal status exactly once and resets the mailbox
// to idle. While a run is in flight, or after a terminal status has
// been consumed, it returns (Status{}, false).
func (w *Worker) Take() (Status, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.status.Terminal() {
		return Status{}, false
	}
	st := w.status
	w.status = Status{State: StateIdle}
	return st, true
}

// Running reports whether a run is in flight.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
