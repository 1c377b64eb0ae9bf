package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/l0p7/usercheck/internal/logging"
	"github.com/l0p7/usercheck/internal/metrics"
)

// ErrNotDocumented is returned by validators when the contract has no
// operation for a request. The runner records it as a note, not a failure.
var ErrNotDocumented = errors.New("operation not documented")

// ResponseValidator checks a captured response against a published contract.
type ResponseValidator interface {
	ValidateResponse(ctx context.Context, req *http.Request, status int, header http.Header, body []byte) error
}

// RunnerOptions wires the runner's collaborators. Every field is optional.
type RunnerOptions struct {
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	Validator ResponseValidator
	RunIDs    *RunIDs
	Now       func() time.Time
}

// Runner executes scenarios one at a time against a target.
type Runner struct {
	target    *Target
	logger    *slog.Logger
	metrics   *metrics.Recorder
	validator ResponseValidator
	runIDs    *RunIDs
	now       func() time.Time
}

// NewRunner prepares a runner for target.
func NewRunner(target *Target, opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		target:    target,
		logger:    logger.With(slog.String("agent", "runner")),
		metrics:   opts.Metrics,
		validator: opts.Validator,
		runIDs:    opts.RunIDs,
		now:       now,
	}
}

// Run executes every scenario in order. A cancelled context stops the run
// between scenarios; the remainder is reported as skipped.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) Report {
	report := Report{
		RunID:     r.runIDs.Next(),
		Target:    r.target.BaseURL(),
		StartedAt: r.now().UTC(),
		Results:   make([]Result, 0, len(scenarios)),
	}
	logger := r.logger.With(slog.String("run_id", report.RunID))
	logger.Info("suite started", slog.Int("scenarios", len(scenarios)), slog.String("target", report.Target))

	for _, scenario := range scenarios {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, Result{
				Name:        scenario.Name,
				Description: scenario.Description,
				Tags:        scenario.Tags,
				Request:     scenario.Request.Describe(),
				Outcome:     OutcomeSkipped,
				Notes:       []string{fmt.Sprintf("run cancelled: %v", err)},
			})
			continue
		}
		report.Results = append(report.Results, r.runScenario(ctx, logger, scenario))
	}

	report.FinishedAt = r.now().UTC()
	report.Summary = summarize(report.Results)
	r.metrics.ObserveSuite(report.FinishedAt, report.Summary.Failed+report.Summary.Errored)
	logger.Info("suite finished",
		slog.Int("passed", report.Summary.Passed),
		slog.Int("failed", report.Summary.Failed),
		slog.Int("errored", report.Summary.Errored),
		slog.Int("skipped", report.Summary.Skipped),
	)
	return report
}

// RunScenario executes a single scenario outside a suite.
func (r *Runner) RunScenario(ctx context.Context, scenario Scenario) Result {
	return r.runScenario(ctx, r.logger, scenario)
}

func (r *Runner) runScenario(ctx context.Context, logger *slog.Logger, scenario Scenario) Result {
	logger = logger.With(slog.String("scenario", scenario.Name))
	start := time.Now()

	handler := &collector{}
	client := &recordingClient{inner: r.target.Client(), recorder: r.metrics, logger: logger}
	e := r.target.Expect(ctx, client, handler)

	result := Result{
		Name:        scenario.Name,
		Description: scenario.Description,
		Tags:        scenario.Tags,
		Request:     scenario.Request.Describe(),
	}

	notes, panicked := exercise(scenario, e)
	result.Notes = append(result.Notes, notes...)
	if panicked != nil {
		handler.add(Failure{Kind: FailureAssertion, Message: fmt.Sprintf("check panicked: %v", panicked)})
	}

	last, sent := client.last()
	if sent {
		result.Status = last.Status
		if last.Err != nil {
			markTransport(handler, last.Err)
		} else {
			r.evaluateConditions(handler, scenario, last)
			r.validateContract(ctx, handler, &result, last)
		}
	}

	result.Failures = handler.failures
	result.Outcome = outcomeOf(result.Failures)
	result.Duration = time.Since(start)
	r.metrics.ObserveScenario(scenario.Name, string(result.Outcome), result.Duration)

	attrs := []any{
		slog.String("outcome", string(result.Outcome)),
		slog.Int("status", result.Status),
		slog.Duration("duration", result.Duration),
	}
	switch result.Outcome {
	case OutcomePass:
		logger.Info("scenario passed", attrs...)
	case OutcomeError:
		logger.Error("scenario errored", append(attrs, slog.Int("failures", len(result.Failures)))...)
	default:
		logger.Warn("scenario failed", append(attrs, slog.Int("failures", len(result.Failures)))...)
	}
	return result
}

func exercise(scenario Scenario, e *httpexpect.Expect) (notes []string, panicked any) {
	defer func() {
		panicked = recover()
	}()
	_, notes = scenario.Exercise(e)
	return notes, nil
}

// markTransport folds the failure httpexpect raised for a request that never
// completed into a single transport failure.
func markTransport(handler *collector, err error) {
	msg := err.Error()
	found := false
	for i := range handler.failures {
		if strings.Contains(handler.failures[i].Message, msg) {
			handler.failures[i].Kind = FailureTransport
		}
		if handler.failures[i].Kind == FailureTransport {
			found = true
		}
	}
	if !found {
		handler.add(Failure{Kind: FailureTransport, Message: msg})
	}
}

func (r *Runner) evaluateConditions(handler *collector, scenario Scenario, ex Exchange) {
	if len(scenario.Conditions) == 0 {
		return
	}
	vars := scenario.Vars
	if vars == nil {
		vars = map[string]any{}
	}
	activation := map[string]any{
		"status":     ex.Status,
		"headers":    headerMap(ex.Header),
		"body":       ex.JSONBody(),
		"latency_ms": float64(ex.Latency) / float64(time.Millisecond),
		"vars":       vars,
	}
	for _, cond := range scenario.Conditions {
		ok, err := cond.EvalBool(activation)
		if err != nil {
			handler.add(Failure{Kind: FailureAssertion, Check: cond.Source(), Message: err.Error()})
			continue
		}
		if !ok {
			handler.add(Failure{Kind: FailureAssertion, Check: cond.Source(), Message: "condition not satisfied", Expected: "true", Actual: "false"})
		}
	}
}

func (r *Runner) validateContract(ctx context.Context, handler *collector, result *Result, ex Exchange) {
	if r.validator == nil {
		return
	}
	err := r.validator.ValidateResponse(ctx, ex.Request, ex.Status, ex.Header, ex.Body)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotDocumented):
		result.Notes = append(result.Notes, err.Error())
	default:
		handler.add(Failure{Kind: FailureContract, Message: err.Error()})
	}
}

func outcomeOf(failures []Failure) Outcome {
	outcome := OutcomePass
	for _, f := range failures {
		if f.Kind == FailureTransport {
			return OutcomeError
		}
		outcome = OutcomeFail
	}
	return outcome
}
