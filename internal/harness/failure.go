package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gavv/httpexpect/v2"
)

// FailureKind classifies why a scenario did not pass.
type FailureKind string

const (
	// FailureAssertion means an observed value differed from the expected one.
	FailureAssertion FailureKind = "assertion"
	// FailureTransport means the request never produced a response.
	FailureTransport FailureKind = "transport"
	// FailureContract means the response violates the OpenAPI document.
	FailureContract FailureKind = "contract"
)

// Failure is one reported problem with its expected and actual values.
type Failure struct {
	Kind     FailureKind `json:"kind"`
	Check    string      `json:"check,omitempty"`
	Message  string      `json:"message"`
	Expected string      `json:"expected,omitempty"`
	Actual   string      `json:"actual,omitempty"`
}

func (f Failure) String() string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	if f.Check != "" {
		b.WriteString(" ")
		b.WriteString(f.Check)
	}
	b.WriteString(": ")
	b.WriteString(f.Message)
	if f.Expected != "" || f.Actual != "" {
		fmt.Fprintf(&b, " (expected %s, actual %s)", orNone(f.Expected), orNone(f.Actual))
	}
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

// collector is the assertion handler bound to a single scenario. httpexpect
// reports into it instead of failing a test, so one scenario's failures never
// stop the next.
type collector struct {
	failures []Failure
}

func (c *collector) Success(*httpexpect.AssertionContext) {}

func (c *collector) Failure(ctx *httpexpect.AssertionContext, failure *httpexpect.AssertionFailure) {
	if failure == nil {
		return
	}
	kind := FailureAssertion
	if isTransportFailure(failure) {
		kind = FailureTransport
	}
	check := ""
	if ctx != nil {
		check = strings.Join(ctx.Path, ".")
	}
	c.failures = append(c.failures, Failure{
		Kind:     kind,
		Check:    check,
		Message:  failureMessage(failure),
		Expected: formatAssertionValue(failure.Expected),
		Actual:   formatAssertionValue(failure.Actual),
	})
}

func (c *collector) add(f Failure) {
	c.failures = append(c.failures, f)
}

func isTransportFailure(failure *httpexpect.AssertionFailure) bool {
	if failure.Type != httpexpect.AssertOperation {
		return false
	}
	for _, err := range failure.Errors {
		if IsTransportError(err) {
			return true
		}
	}
	return false
}

// IsTransportError reports whether err came from the network rather than from
// a response: DNS, connection or timeout problems.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func failureMessage(failure *httpexpect.AssertionFailure) string {
	msgs := make([]string, 0, len(failure.Errors))
	for _, err := range failure.Errors {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return fmt.Sprint(failure.Type)
	}
	return strings.Join(msgs, "; ")
}

func formatAssertionValue(v *httpexpect.AssertionValue) string {
	if v == nil {
		return ""
	}
	return formatValue(v.Value)
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprint(v)
}
