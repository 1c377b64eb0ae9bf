package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Outcome is the verdict for one scenario.
type Outcome string

const (
	// OutcomePass means every check on every attempt held.
	OutcomePass Outcome = "pass"
	// OutcomeFail means a status, body, condition or contract check did not hold.
	OutcomeFail Outcome = "fail"
	// OutcomeError means no usable response arrived (refused, timed out, unreadable).
	OutcomeError Outcome = "error"
	// OutcomeSkipped means the run was cancelled before the scenario started.
	OutcomeSkipped Outcome = "skipped"
)

// Result is what one scenario produced.
type Result struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Request     string        `json:"request"`
	Outcome     Outcome       `json:"outcome"`
	Status      int           `json:"status,omitempty"`
	Duration    time.Duration `json:"-"`
	Failures    []Failure     `json:"failures,omitempty"`
	Notes       []string      `json:"notes,omitempty"`
}

// MarshalJSON adds the duration in milliseconds.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		DurationMS float64 `json:"durationMs"`
	}{plain: plain(r), DurationMS: float64(r.Duration) / float64(time.Millisecond)})
}

// UnmarshalJSON restores the duration written by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	var aux struct {
		plain
		DurationMS float64 `json:"durationMs"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Result(aux.plain)
	r.Duration = time.Duration(aux.DurationMS * float64(time.Millisecond))
	return nil
}

// Summary counts results per outcome.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// Report is the run-level outcome.
type Report struct {
	RunID      string    `json:"runId"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Results    []Result  `json:"results"`
	Summary    Summary   `json:"summary"`
}

// OK reports whether at least one scenario ran and every scenario passed. An
// empty selection or a cancelled run is not OK.
func (r Report) OK() bool {
	s := r.Summary
	return s.Total > 0 && s.Passed == s.Total
}

// Result returns the named result.
func (r Report) Result(name string) (Result, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return Result{}, false
}

func summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, res := range results {
		switch res.Outcome {
		case OutcomePass:
			s.Passed++
		case OutcomeFail:
			s.Failed++
		case OutcomeError:
			s.Errored++
		case OutcomeSkipped:
			s.Skipped++
		}
	}
	return s
}

// Write renders the report as "text" (the default) or "json".
func (r Report) Write(w io.Writer, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("harness: encode report: %w", err)
		}
		return nil
	case "", "text":
		return r.writeText(w)
	default:
		return fmt.Errorf("harness: unsupported report format %q", format)
	}
}

func (r Report) writeText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s against %s\n", r.RunID, r.Target)
	for _, res := range r.Results {
		fmt.Fprintf(&b, "%-7s %s  %s  %s\n",
			strings.ToUpper(string(res.Outcome)), res.Name, res.Request, res.Duration.Round(time.Millisecond))
		for _, f := range res.Failures {
			fmt.Fprintf(&b, "        - %s\n", f)
		}
		for _, note := range res.Notes {
			fmt.Fprintf(&b, "        note: %s\n", note)
		}
	}
	s := r.Summary
	fmt.Fprintf(&b, "%d scenarios: %d passed, %d failed, %d errored, %d skipped\n",
		s.Total, s.Passed, s.Failed, s.Errored, s.Skipped)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("harness: write report: %w", err)
	}
	return nil
}
