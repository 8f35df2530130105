// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus collectors for a download run. A run is
// a short-lived process, so the collected values are written once to a
// node_exporter textfile instead of being scraped.
package metrics

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "searchdl"

// Collector holds the collectors of one run in a private registry and
// receives their updates as an API observer.
type Collector struct {
	registry *prometheus.Registry

	// APIRequests counts API calls by operation and HTTP status (0 for
	// transport failures).
	APIRequests *prometheus.CounterVec

	// PollCycles counts job status polls by dispatch state.
	PollCycles *prometheus.CounterVec

	// Reauthentications counts sessions replaced after expiry.
	Reauthentications prometheus.Counter

	// PagesFetched counts result pages by format.
	PagesFetched *prometheus.CounterVec

	// PageBytes tracks the size of result pages in bytes.
	PageBytes prometheus.Histogram

	// ExportAttempts counts raw export attempts by method and outcome.
	ExportAttempts *prometheus.CounterVec

	// LastRunSuccess is 1 when the last run finished successfully.
	LastRunSuccess prometheus.Gauge

	// LastRunTimestamp is the Unix time the last run finished.
	LastRunTimestamp prometheus.Gauge
}

// NewCollector registers all collectors on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of search API requests",
			},
			[]string{"operation", "status"},
		),
		PollCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Total number of job status polls by dispatch state",
			},
			[]string{"state"},
		),
		Reauthentications: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reauthentications_total",
				Help:      "Total number of sessions replaced after expiry",
			},
		),
		PagesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Total number of result pages retrieved",
			},
			[]string{"format"},
		),
		PageBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "page_bytes",
				Help:      "Size of result pages in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to ~256MiB
			},
		),
		ExportAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_attempts_total",
				Help:      "Total number of raw export attempts by method and result",
			},
			[]string{"method", "result"},
		),
		LastRunSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "Whether the last run finished successfully",
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
	}
}

// Registry returns the registry holding the run's collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RequestCompleted counts an API call.
func (c *Collector) RequestCompleted(op string, status int) {
	c.APIRequests.WithLabelValues(op, strconv.Itoa(status)).Inc()
}

// Reauthenticated counts a session replacement.
func (c *Collector) Reauthenticated() {
	c.Reauthentications.Inc()
}

// PollCycle counts a status poll.
func (c *Collector) PollCycle(state string) {
	c.PollCycles.WithLabelValues(state).Inc()
}

// PageFetched counts a result page and observes its size.
func (c *Collector) PageFetched(format string, offset, bytes int) {
	c.PagesFetched.WithLabelValues(format).Inc()
	c.PageBytes.Observe(float64(bytes))
}

// ExportTier counts a raw export attempt.
func (c *Collector) ExportTier(tier int, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.ExportAttempts.WithLabelValues(strconv.Itoa(tier), result).Inc()
}

// Finish records the outcome of the run.
func (c *Collector) Finish(success bool) {
	if success {
		c.LastRunSuccess.Set(1)
	} else {
		c.LastRunSuccess.Set(0)
	}
	c.LastRunTimestamp.SetToCurrentTime()
}

// WriteTextfile writes all collectors in the text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(filepath.Clean(path), c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
