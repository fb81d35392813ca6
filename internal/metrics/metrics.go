// Package metrics exposes the dashboard's operational counters.
//
// The counters are registered on a private registry so importing this
// package never pollutes the default one. Serve starts an optional
// HTTP listener; when no address is configured the counters still
// count and tests can read them directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	// HandleConstructions counts resource handle constructions. Stays
	// flat while the resource cache is doing its job.
	HandleConstructions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quicklook_handle_constructions_total",
		Help: "Number of per-visit resource handles constructed.",
	})

	// VisitValidations counts per-visit date lookups during discovery.
	VisitValidations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quicklook_visit_validations_total",
		Help: "Number of per-visit observation date validations performed.",
	})

	// DiscoveryRuns counts discovery runs by outcome: success, empty,
	// error.
	DiscoveryRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quicklook_discovery_runs_total",
		Help: "Number of visit discovery runs by outcome.",
	}, []string{"outcome"})

	// BuildTasks counts array build tasks by outcome: success, missing,
	// error.
	BuildTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quicklook_build_tasks_total",
		Help: "Number of array build tasks by outcome.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(HandleConstructions, VisitValidations, DiscoveryRuns, BuildTasks)
}

// Serve exposes /metrics on addr. Returns immediately; the listener
// runs until the process exits. An empty addr disables serving.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go srv.ListenAndServe()
}
