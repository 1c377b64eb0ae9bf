package harness

import (
	"github.com/gavv/httpexpect/v2"
)

// Check asserts on the response through httpexpect.
type Check func(resp *httpexpect.Response)

// Condition is evaluated against the captured exchange once Check ran. The
// activation exposes status, headers, body, latency_ms and vars.
type Condition interface {
	Source() string
	EvalBool(activation map[string]any) (bool, error)
}

// Observer turns a response into a free-form note for the report. attempt
// counts from 1.
type Observer func(attempt int, resp *httpexpect.Response) string

// Scenario is one independent case: a request and what its response must
// satisfy.
type Scenario struct {
	Name        string
	Description string
	Tags        []string
	Request     RequestSpec
	Check       Check
	Conditions  []Condition
	Vars        map[string]any
	// Attempts repeats the request; Check sees the last response. Zero means
	// one attempt.
	Attempts int
	Observe  Observer
}

// HasTag reports whether the scenario carries tag.
func (s Scenario) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Exercise sends the request and runs Check and Observe. It returns the last
// response and any notes the observer produced.
func (s Scenario) Exercise(e *httpexpect.Expect) (*httpexpect.Response, []string) {
	attempts := s.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var (
		resp  *httpexpect.Response
		notes []string
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		resp = s.Request.Build(e).Expect()
		if s.Observe != nil {
			if note := s.Observe(attempt, resp); note != "" {
				notes = append(notes, note)
			}
		}
	}
	if s.Check != nil {
		s.Check(resp)
	}
	return resp, notes
}
