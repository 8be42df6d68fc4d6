package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	lookupOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpj_lookups_total",
			Help: "Total identifier resolutions by outcome",
		},
		[]string{"outcome"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cnpja_requests_total",
			Help: "Total upstream requests by strategy and response status",
		},
		[]string{"strategy", "status"},
	)

	rateLimitWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cnpj_ratelimit_waits_total",
			Help: "Total times a caller waited for the next rate limit window",
		},
	)

	activeJobsDesc = prometheus.NewDesc(
		"cnpj_jobs_active",
		"Batch jobs that are running or paused",
		nil,
		nil,
	)

	historyRecordsDesc = prometheus.NewDesc(
		"cnpj_history_records",
		"Stored batch history records",
		nil,
		nil,
	)
)

// JobCounter reports live jobs.
type JobCounter interface {
	ActiveCount() int
}

// HistoryCounter reports stored history records.
type HistoryCounter interface {
	CountHistory(ctx context.Context) (int64, error)
}

// StateCollector reads job and history gauges on each scrape.
type StateCollector struct {
	jobs    JobCounter
	history HistoryCounter
}

// NewStateCollector creates a collector. history may be nil.
func NewStateCollector(jobs JobCounter, history HistoryCounter) *StateCollector {
	return &StateCollector{jobs: jobs, history: history}
}

// Describe sends the metric descriptors to the channel.
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- activeJobsDesc
	if c.history != nil {
		ch <- historyRecordsDesc
	}
}

// Collect emits the current gauges.
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(activeJobsDesc, prometheus.GaugeValue, float64(c.jobs.ActiveCount()))

	if c.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := c.history.CountHistory(ctx)
	if err != nil {
		slog.Error("failed to collect history metrics", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(historyRecordsDesc, prometheus.GaugeValue, float64(n))
}

var initOnce sync.Once

// Init registers the collectors with the default registry.
// Must be called once at startup.
func Init(jobs JobCounter, history HistoryCounter) {
	initOnce.Do(func() {
		prometheus.MustRegister(lookupOutcomes, upstreamRequests, rateLimitWaits)
		prometheus.MustRegister(NewStateCollector(jobs, history))
	})
}

// RecordLookup counts one finished resolution.
func RecordLookup(outcome string) {
	lookupOutcomes.WithLabelValues(outcome).Inc()
}

// RecordUpstream counts one upstream request.
func RecordUpstream(strategy, status string) {
	upstreamRequests.WithLabelValues(strategy, status).Inc()
}

// RecordRateLimitWait counts one wait for the next window.
func RecordRateLimitWait() {
	rateLimitWaits.Inc()
}

// Handler serves the default registry.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
