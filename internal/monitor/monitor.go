// Package monitor runs the suite continuously, keeps the report history and
// serves the latest verdict over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/l0p7/usercheck/internal/config"
	"github.com/l0p7/usercheck/internal/harness"
	"github.com/l0p7/usercheck/internal/metrics"
	"github.com/l0p7/usercheck/internal/store"
)

// SuiteRunner executes a scenario list and reports on it.
type SuiteRunner interface {
	Run(ctx context.Context, scenarios []harness.Scenario) harness.Report
}

// Snapshot is the scenario set the monitor runs, plus where it came from.
type Snapshot struct {
	Scenarios []harness.Scenario
	Sources   []string
	Skipped   []config.DefinitionSkip
}

// Options configure a Monitor. Store and Interval are required.
type Options struct {
	Store    store.ReportStore
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
	Interval time.Duration
	// OnReport, when set, sees every report after it is stored.
	OnReport func(harness.Report)
}

// Monitor alternates between waiting and running the suite. A snapshot update
// triggers an immediate run.
type Monitor struct {
	runner   SuiteRunner
	store    store.ReportStore
	metrics  *metrics.Recorder
	logger   *slog.Logger
	interval time.Duration
	onReport func(harness.Report)

	mu       sync.RWMutex
	snapshot Snapshot
	runs     int

	trigger chan struct{}
}

// New builds a monitor around runner.
func New(runner SuiteRunner, snapshot Snapshot, opts Options) (*Monitor, error) {
	if runner == nil {
		return nil, errors.New("monitor: runner required")
	}
	if opts.Store == nil {
		return nil, errors.New("monitor: report store required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("monitor: interval must be positive: %s", opts.Interval)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		runner:   runner,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   logger.With(slog.String("agent", "monitor")),
		interval: opts.Interval,
		onReport: opts.OnReport,
		snapshot: snapshot,
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Update swaps the scenario set and schedules a run.
func (m *Monitor) Update(snapshot Snapshot) {
	m.mu.Lock()
	m.snapshot = snapshot
	m.mu.Unlock()
	m.logger.Info("scenarios reloaded",
		slog.Int("scenarios", len(snapshot.Scenarios)),
		slog.Int("skipped", len(snapshot.Skipped)),
	)
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Runs reports how many suite runs completed.
func (m *Monitor) Runs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs
}

// Run executes the suite right away, then on every tick or update until ctx
// is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-m.trigger:
			ticker.Reset(m.interval)
		}
		m.runAndLog(ctx)
	}
}

func (m *Monitor) runAndLog(ctx context.Context) {
	if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
		m.logger.Error("suite run not stored", slog.Any("error", err))
	}
}

// RunOnce executes the current scenario set and stores the report.
func (m *Monitor) RunOnce(ctx context.Context) (harness.Report, error) {
	m.mu.RLock()
	scenarios := m.snapshot.Scenarios
	m.mu.RUnlock()
	if len(scenarios) == 0 {
		m.logger.Warn("no scenarios selected")
	}

	report := m.runner.Run(ctx, scenarios)
	m.mu.Lock()
	m.runs++
	m.mu.Unlock()

	body, err := json.Marshal(report)
	if err != nil {
		return report, fmt.Errorf("monitor: encode report: %w", err)
	}
	entry := store.Entry{ID: report.RunID, OK: report.OK(), Report: body, StoredAt: report.FinishedAt}
	if err := m.store.Save(ctx, entry); err != nil {
		return report, fmt.Errorf("monitor: store report %s: %w", report.RunID, err)
	}
	if m.onReport != nil {
		m.onReport(report)
	}
	return report, nil
}

// ServeHealth answers 200 when the latest stored run passed and 503 when it
// failed or no run has been stored yet.
func (m *Monitor) ServeHealth(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	snapshot := m.snapshot
	m.mu.RUnlock()

	payload := struct {
		Status             string                  `json:"status"`
		ObservedAt         time.Time               `json:"observedAt"`
		RunID              string                  `json:"runId,omitempty"`
		LastRunAt          time.Time               `json:"lastRunAt,omitzero"`
		Scenarios          int                     `json:"scenarios"`
		ReportsStored      int64                   `json:"reportsStored"`
		ScenarioSources    []string                `json:"scenarioSources,omitempty"`
		SkippedDefinitions []config.DefinitionSkip `json:"skippedDefinitions,omitempty"`
	}{
		ObservedAt:         time.Now().UTC(),
		Scenarios:          len(snapshot.Scenarios),
		ScenarioSources:    snapshot.Sources,
		SkippedDefinitions: snapshot.Skipped,
	}

	code := http.StatusServiceUnavailable
	entry, ok, err := m.store.Latest(r.Context())
	switch {
	case err != nil:
		m.logger.Error("latest report lookup failed", slog.Any("error", err))
		payload.Status = "unknown"
	case !ok:
		payload.Status = "pending"
	default:
		payload.RunID = entry.ID
		payload.LastRunAt = entry.StoredAt
		payload.Status = "fail"
		if entry.OK {
			payload.Status = "pass"
			code = http.StatusOK
		}
	}
	if size, err := m.store.Size(r.Context()); err == nil {
		payload.ReportsStored = size
	} else {
		m.logger.Error("report store size query failed", slog.Any("error", err))
	}
	m.writeJSON(w, code, payload)
}

// ServeLatest returns the most recent stored report.
func (m *Monitor) ServeLatest(w http.ResponseWriter, r *http.Request) {
	entry, ok, err := m.store.Latest(r.Context())
	m.serveEntry(w, entry, ok, err, "no report stored yet")
}

// ServeReport returns the stored report for run id.
func (m *Monitor) ServeReport(w http.ResponseWriter, r *http.Request, id string) {
	entry, ok, err := m.store.Get(r.Context(), id)
	m.serveEntry(w, entry, ok, err, fmt.Sprintf("report %q not found", id))
}

func (m *Monitor) serveEntry(w http.ResponseWriter, entry store.Entry, ok bool, err error, missing string) {
	if err != nil {
		m.logger.Error("report lookup failed", slog.Any("error", err))
		m.WriteError(w, http.StatusInternalServerError, "report store unavailable")
		return
	}
	if !ok {
		m.WriteError(w, http.StatusNotFound, missing)
		return
	}
	m.writeJSON(w, http.StatusOK, entry)
}

// ServeMetrics exposes the Prometheus registry.
func (m *Monitor) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	m.metrics.Handler().ServeHTTP(w, r)
}

// WriteError emits a JSON error payload.
func (m *Monitor) WriteError(w http.ResponseWriter, status int, message string) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	m.writeJSON(w, status, map[string]any{"error": message})
}

func (m *Monitor) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		m.logger.Error("response encode failed", slog.Any("error", err))
	}
}
