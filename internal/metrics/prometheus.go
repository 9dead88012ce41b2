package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/gateway-fm/txbench/pkg/types"
)

// Recorder holds the Prometheus metrics of one run. It satisfies the
// scheduler and tracker metrics hooks and the RPC client observer.
type Recorder struct {
	reg *prometheus.Registry

	Submissions    *prometheus.CounterVec
	SubmitLatency  prometheus.Histogram
	Receipts       *prometheus.CounterVec
	ConfirmLatency prometheus.Histogram
	PollErrors     prometheus.Counter
	RPCLatency     *prometheus.HistogramVec
	Throughput     prometheus.Gauge
}

// NewRecorder creates a recorder backed by its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		reg: reg,

		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txbench_submissions_total",
				Help: "Submission attempts by outcome",
			},
			[]string{"outcome"},
		),

		SubmitLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "txbench_submit_latency_seconds",
				Help:    "eth_sendRawTransaction round trip in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),

		Receipts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txbench_receipts_total",
				Help: "Tracked transactions by terminal status",
			},
			[]string{"status"},
		),

		ConfirmLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "txbench_confirmation_latency_seconds",
				Help:    "Submission to receipt latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),

		PollErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "txbench_receipt_poll_errors_total",
				Help: "Failed receipt polls",
			},
		),

		RPCLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txbench_rpc_latency_seconds",
				Help:    "RPC call latency by method",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "status"},
		),

		Throughput: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "txbench_throughput_tps",
				Help: "Confirmed transactions per second of the last run",
			},
		),
	}
}

// Registry returns the registry the metrics are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// ObserveSubmission records a submission attempt.
func (r *Recorder) ObserveSubmission(outcome types.Outcome, elapsed time.Duration) {
	r.Submissions.WithLabelValues(string(outcome)).Inc()
	r.SubmitLatency.Observe(elapsed.Seconds())
}

// ObserveReceipt records a terminal receipt state.
func (r *Recorder) ObserveReceipt(status types.ReceiptStatus, latency time.Duration) {
	r.Receipts.WithLabelValues(string(status)).Inc()
	if status != types.ReceiptTimedOut {
		r.ConfirmLatency.Observe(latency.Seconds())
	}
}

// ObservePollError records a failed receipt poll.
func (r *Recorder) ObservePollError() {
	r.PollErrors.Inc()
}

// knownRPCMethods is a fixed set of known RPC methods to prevent cardinality explosion
var knownRPCMethods = map[string]bool{
	"eth_chainId":                     true,
	"eth_getBalance":                  true,
	"eth_getTransactionCount":         true,
	"eth_sendRawTransaction":          true,
	"eth_getTransactionReceipt":       true,
	"batch:eth_getTransactionReceipt": true,
}

// ObserveRPC records RPC call latency. It matches rpc.Observer.
func (r *Recorder) ObserveRPC(method string, err error, elapsed time.Duration) {
	if !knownRPCMethods[method] {
		method = "other"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.RPCLatency.WithLabelValues(method, status).Observe(elapsed.Seconds())
}

// SetRunStatistics exports the derived run figures.
func (r *Recorder) SetRunStatistics(stats types.RunStatistics) {
	r.Throughput.Set(stats.Throughput)
}

// Push sends the collected metrics to a Prometheus Pushgateway under job.
func (r *Recorder) Push(url, job string) error {
	if err := push.New(url, job).Gatherer(r.reg).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
