// Package discovery finds the visits worth showing for the working
// observation date.
//
// Discovery runs in the background and publishes its outcome into a
// Status mailbox that the UI loop polls; see Worker and Poller. The
// validity cache it maintains makes repeat runs cheap: a visit that
// already validated against the working date is never looked up again.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/obsproc/quicklook/internal/cache"
	"github.com/obsproc/quicklook/internal/datastore"
	"github.com/obsproc/quicklook/internal/logging"
	"github.com/obsproc/quicklook/internal/metrics"
)

// ErrListFailed wraps listing failures. The validity cache is left
// untouched when this is returned.
var ErrListFailed = errors.New("visit listing failed")

// maxValidationWorkers caps the per-run validation fan-out.
const maxValidationWorkers = 32

// Options tunes a discovery run. The zero value is usable.
type Options struct {
	// Workers bounds concurrent validation lookups. Values outside
	// [1, 32] are clamped.
	Workers int

	// Limiter optionally throttles validation lookups across runs.
	Limiter *rate.Limiter
}

func (o Options) workers() int {
	if o.Workers < 1 {
		return maxValidationWorkers
	}
	if o.Workers > maxValidationWorkers {
		return maxValidationWorkers
	}
	return o.Workers
}

// Discover lists the visits under baseCollection and returns those
// whose observation date matches date, newest first.
//
// The listing is always performed in full. Visits already in the
// validity cache with a matching date are accepted without a lookup;
// the rest are validated in parallel. Validated visits are added to
// the cache; visits whose date does not match, or whose lookup fails,
// are removed from it. A listing failure leaves the cache untouched
// and returns ErrListFailed.
func Discover(ctx context.Context, store datastore.Store, baseCollection, date string, vc *cache.VisitValidityCache, opts Options) ([]datastore.Visit, error) {
	names, err := store.ListCollections(ctx, baseCollection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}

	var cachedValid, needsCheck []datastore.Visit
	for _, name := range names {
		visit, ok := datastore.VisitFromCollection(name)
		if !ok {
			continue
		}
		if cached, ok := vc.Get(visit); ok && cached == date {
			cachedValid = append(cachedValid, visit)
		} else {
			needsCheck = append(needsCheck, visit)
		}
	}

	var mu sync.Mutex
	valid := cachedValid

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for _, visit := range needsCheck {
		visit := visit
		g.Go(func() error {
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(gctx); err != nil {
					return err
				}
			}
			metrics.VisitValidations.Inc()
			observed, err := store.VisitDate(gctx, baseCollection, visit)
			if err != nil {
				// One visit's failure never aborts the batch.
				logging.Warn("Visit validation failed", "visit", visit, "error", err)
				vc.Delete(visit)
				return nil
			}
			if observed != date {
				vc.Delete(visit)
				return nil
			}
			vc.Put(visit, date)
			mu.Lock()
			valid = append(valid, visit)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Only context cancellation or limiter errors reach here.
		return nil, err
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i] > valid[j] })
	return valid, nil
}
