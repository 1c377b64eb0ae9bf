package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StoreOperation identifies the report store method being instrumented.
type StoreOperation string

const (
	// StoreOperationSave records report persistence calls.
	StoreOperationSave StoreOperation = "save"
	// StoreOperationLoad records report lookups by id or latest pointer.
	StoreOperationLoad StoreOperation = "load"
)

// StoreResult captures the result of a store operation.
type StoreResult string

const (
	// StoreResultOK indicates the operation succeeded.
	StoreResultOK StoreResult = "ok"
	// StoreResultMiss indicates the requested report was not present.
	StoreResultMiss StoreResult = "miss"
	// StoreResultError indicates the operation failed.
	StoreResultError StoreResult = "error"
)

// Recorder publishes Prometheus metrics for suite activity.
type Recorder struct {
	suite    *prometheus.Registry
	gatherer prometheus.Gatherer
	handler  http.Handler

	scenarioRuns     *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec

	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec

	lastRun        prometheus.Gauge
	failedScenario prometheus.Gauge
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created for the process collectors. Suite metrics live
// on their own registry so WriteTextfile emits only usercheck series.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	suite := prometheus.NewRegistry()

	scenarioRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "usercheck",
		Subsystem: "scenario",
		Name:      "runs_total",
		Help:      "Scenarios executed, partitioned by outcome.",
	}, []string{"scenario", "outcome"})

	scenarioDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "usercheck",
		Subsystem: "scenario",
		Name:      "duration_seconds",
		Help:      "Wall time spent on a scenario, request and checks included.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"scenario", "outcome"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "usercheck",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests sent to the target service.",
	}, []string{"method", "status_code"})

	storeOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "usercheck",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Report store operations.",
	}, []string{"operation", "result"})

	storeLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "usercheck",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for report store operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "usercheck",
		Subsystem: "suite",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time at which the last suite run finished.",
	})

	failedScenarios := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "usercheck",
		Subsystem: "suite",
		Name:      "failed_scenarios",
		Help:      "Scenarios that failed or errored in the last suite run.",
	})

	suite.MustRegister(scenarioRuns, scenarioDuration, httpRequests, storeOperations, storeLatency, lastRun, failedScenarios)

	gatherer := prometheus.Gatherers{reg, suite}
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})

	return &Recorder{
		suite:            suite,
		gatherer:         gatherer,
		handler:          handler,
		scenarioRuns:     scenarioRuns,
		scenarioDuration: scenarioDuration,
		httpRequests:     httpRequests,
		storeOperations:  storeOperations,
		storeLatency:     storeLatency,
		lastRun:          lastRun,
		failedScenario:   failedScenarios,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registries.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the combined gatherer for tests and advanced integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// WriteTextfile writes the suite series in the node_exporter textfile format.
// The write is atomic: the file is staged and renamed into place.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return errors.New("metrics: recorder unavailable")
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("metrics: textfile path required")
	}
	if err := prometheus.WriteToTextfile(path, r.suite); err != nil {
		return fmt.Errorf("metrics: write textfile %s: %w", path, err)
	}
	return nil
}

// ObserveScenario records the outcome and duration of one scenario.
func (r *Recorder) ObserveScenario(scenario, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	scenarioLabel := normalizeLabel(scenario)
	outcomeLabel := normalizeLabel(outcome)
	r.scenarioRuns.WithLabelValues(scenarioLabel, outcomeLabel).Inc()
	r.scenarioDuration.WithLabelValues(scenarioLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveHTTPRequest counts a request sent to the target. A non-positive status
// marks a request that never produced a response.
func (r *Recorder) ObserveHTTPRequest(method string, statusCode int) {
	if r == nil {
		return
	}
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "none"
	}
	r.httpRequests.WithLabelValues(strings.ToUpper(normalizeLabel(method)), statusLabel).Inc()
}

// ObserveStore records the result and latency of a report store operation.
func (r *Recorder) ObserveStore(operation StoreOperation, result StoreResult, duration time.Duration) {
	if r == nil {
		return
	}
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(StoreOperationLoad)
	}
	resLabel := string(result)
	if resLabel == "" {
		resLabel = string(StoreResultError)
	}
	r.storeOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.storeLatency.WithLabelValues(opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveSuite updates the gauges describing the last completed run.
func (r *Recorder) ObserveSuite(finishedAt time.Time, failed int) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(finishedAt.UnixNano()) / float64(time.Second))
	r.failedScenario.Set(float64(failed))
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
