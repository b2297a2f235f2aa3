package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wartime-penguins/notary/module"
)

type NotaryCollector struct {
	requestsHandled  *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsFailed   *prometheus.CounterVec
	pollFailures     prometheus.Counter
	artifactSize     prometheus.Histogram
	artifactDuration prometheus.Histogram
	blocksVerified   prometheus.Counter
	blocksRejected   prometheus.Counter
	noticesEmitted   prometheus.Counter
	manifestEntries  prometheus.Histogram
}

var _ module.NotaryMetrics = (*NotaryCollector)(nil)

func NewNotaryCollector(registerer prometheus.Registerer) *NotaryCollector {
	r := NewRegisterer(registerer)

	return &NotaryCollector{
		requestsHandled: r.RegisterNewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemDriver,
			Name:      "requests_handled_total",
			Help:      "number of rollup requests handled, by kind and reported status",
		}, []string{LabelKind, LabelStatus}),

		requestDuration: r.RegisterNewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemDriver,
			Name:      "request_duration_seconds",
			Help:      "time spent handling a rollup request",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{LabelKind}),

		requestsFailed: r.RegisterNewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemDriver,
			Name:      "requests_failed_total",
			Help:      "number of rollup requests whose handler returned an error",
		}, []string{LabelKind}),

		pollFailures: r.RegisterNewCounter(prometheus.CounterOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemDriver,
			Name:      "poll_failures_total",
			Help:      "number of failed attempts to reach the rollup server",
		}),

		artifactSize: r.RegisterNewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemPipeline,
			Name:      "artifact_size_bytes",
			Help:      "size of rendered artifacts",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 2, 10),
		}),

		artifactDuration: r.RegisterNewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemPipeline,
			Name:      "artifact_render_seconds",
			Help:      "time spent rendering an artifact",
			Buckets:   prometheus.DefBuckets,
		}),

		blocksVerified: r.RegisterNewCounter(prometheus.CounterOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemPipeline,
			Name:      "blocks_verified_total",
			Help:      "number of blocks whose address declared keccak-256",
		}),

		blocksRejected: r.RegisterNewCounter(prometheus.CounterOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemPipeline,
			Name:      "blocks_rejected_total",
			Help:      "number of blocks whose address declared another hash algorithm",
		}),

		noticesEmitted: r.RegisterNewCounter(prometheus.CounterOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemPipeline,
			Name:      "notices_emitted_total",
			Help:      "number of notices sent to the rollup server",
		}),

		manifestEntries: r.RegisterNewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceNotary,
			Subsystem: subsystemPipeline,
			Name:      "manifest_entries",
			Help:      "number of blocks listed in emitted manifests",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (c *NotaryCollector) RequestHandled(kind string, status string, duration time.Duration) {
	c.requestsHandled.WithLabelValues(kind, status).Inc()
	c.requestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (c *NotaryCollector) RequestFailed(kind string) {
	c.requestsFailed.WithLabelValues(kind).Inc()
}

func (c *NotaryCollector) PollFailed() {
	c.pollFailures.Inc()
}

func (c *NotaryCollector) ArtifactSynthesized(sizeBytes int, duration time.Duration) {
	c.artifactSize.Observe(float64(sizeBytes))
	c.artifactDuration.Observe(duration.Seconds())
}

func (c *NotaryCollector) BlocksVerified(count int) {
	c.blocksVerified.Add(float64(count))
}

func (c *NotaryCollector) BlockRejected() {
	c.blocksRejected.Inc()
}

func (c *NotaryCollector) NoticeEmitted(manifestEntries int) {
	c.noticesEmitted.Inc()
	c.manifestEntries.Observe(float64(manifestEntries))
}
