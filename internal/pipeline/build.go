package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/obsproc/quicklook/internal/cache"
	"github.com/obsproc/quicklook/internal/datastore"
	"github.com/obsproc/quicklook/internal/logging"
	"github.com/obsproc/quicklook/internal/metrics"
)

// maxBuildWorkers caps build fan-out per request.
const maxBuildWorkers = 16

// BuildTask names one cell of the (spectrograph, arm) grid.
type BuildTask struct {
	Spectrograph int
	Arm          Arm
}

func (t BuildTask) String() string {
	return fmt.Sprintf("%s%d", t.Arm, t.Spectrograph)
}

// BuildResult is one task's outcome. Exactly one of Array or Err is
// set.
type BuildResult struct {
	Task  BuildTask
	Array *datastore.Array2D
	Meta  map[string]string
	Err   error
}

// BuildOptions configures a build request.
type BuildOptions struct {
	Store          datastore.Store
	BaseCollection string
	Resources      *cache.ResourceCache
	Transform      TransformOptions

	// Workers bounds task fan-out. Values outside [1, 16] are clamped.
	Workers int
}

func (o BuildOptions) workers(tasks int) int {
	w := o.Workers
	if w < 1 || w > maxBuildWorkers {
		w = maxBuildWorkers
	}
	if tasks < w {
		w = tasks
	}
	return w
}

// Build runs every task for the visit in parallel and returns the
// per-spectrograph results, ordered within each spectrograph by the
// caller's task order.
//
// Every task runs to completion regardless of other tasks' failures; a
// task failure lands in its result's Err, never aborts the batch. The
// visit's resource handle is acquired once through the cache and
// shared by all tasks.
func Build(ctx context.Context, visit datastore.Visit, tasks []BuildTask, opts BuildOptions) (map[int][]BuildResult, error) {
	if len(tasks) == 0 {
		return map[int][]BuildResult{}, nil
	}

	results := make([]BuildResult, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers(len(tasks)))
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = runTask(gctx, visit, task, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	grouped := make(map[int][]BuildResult)
	for _, r := range results {
		grouped[r.Task.Spectrograph] = append(grouped[r.Task.Spectrograph], r)
	}
	return grouped, nil
}

// runTask executes one task. Panics inside the task surface as task
// errors, never as process crashes.
func runTask(ctx context.Context, visit datastore.Visit, task BuildTask, opts BuildOptions) (res BuildResult) {
	res.Task = task
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Build task panicked", "visit", visit, "task", task.String(), "panic", r)
			res.Array = nil
			res.Err = fmt.Errorf("task %s panicked: %v", task, r)
		}
		switch {
		case res.Err == nil:
			metrics.BuildTasks.WithLabelValues("success").Inc()
		case datastore.IsNotFound(res.Err):
			metrics.BuildTasks.WithLabelValues("missing").Inc()
		default:
			metrics.BuildTasks.WithLabelValues("error").Inc()
		}
	}()

	key := cache.HandleKey{BaseCollection: opts.BaseCollection, Visit: visit}
	handle, err := opts.Resources.Acquire(ctx, key, func(ctx context.Context) (*datastore.Handle, error) {
		h, err := opts.Store.Open(ctx, opts.BaseCollection, visit)
		if err == nil {
			metrics.HandleConstructions.Inc()
		}
		return h, err
	})
	if err != nil {
		res.Err = fmt.Errorf("open visit %d: %w", visit, err)
		return res
	}

	exposure, err := handle.Get(ctx, datastore.ProductExposure, task.Spectrograph, string(task.Arm))
	if err != nil {
		res.Err = err
		return res
	}

	var sky *datastore.Array2D
	if opts.Transform.SubtractSky {
		skyDS, err := handle.Get(ctx, datastore.ProductSky, task.Spectrograph, string(task.Arm))
		if err == nil {
			sky = skyDS.Array
		} else if !datastore.IsNotFound(err) {
			res.Err = fmt.Errorf("fetch sky for %s: %w", task, err)
			return res
		}
		// Missing sky model: show the unsubtracted frame.
	}

	array, meta, err := Transform(exposure.Array, sky, opts.Transform)
	if err != nil {
		res.Err = fmt.Errorf("transform %s: %w", task, err)
		return res
	}
	for k, v := range exposure.Meta {
		meta[k] = v
	}
	res.Array = array
	res.Meta = meta
	return res
}
