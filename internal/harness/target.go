package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gavv/httpexpect/v2"
)

// ErrInvalidTarget marks a configuration failure: no scenario can run.
var ErrInvalidTarget = errors.New("harness: invalid target")

const defaultTimeout = 10 * time.Second

// TargetOptions carries the raw settings NewTarget validates.
type TargetOptions struct {
	BaseURL      string
	APIKeyHeader string
	APIKey       string
	Headers      map[string]string
	Timeout      time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Target is the shared request configuration every scenario is sent with. It
// is immutable once built and safe to hand to any number of scenarios.
type Target struct {
	baseURL string
	headers http.Header
	timeout time.Duration
	client  *http.Client
}

// NewTarget validates opts. It never touches the network.
func NewTarget(opts TargetOptions) (*Target, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidTarget)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: base URL: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: base URL must be http or https: %s", ErrInvalidTarget, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: base URL missing host: %s", ErrInvalidTarget, raw)
	}

	headers := make(http.Header, len(opts.Headers)+1)
	for name, value := range opts.Headers {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: blank header name", ErrInvalidTarget)
		}
		headers.Set(name, value)
	}
	if opts.APIKey != "" {
		if strings.TrimSpace(opts.APIKeyHeader) == "" {
			return nil, fmt.Errorf("%w: API key header name required", ErrInvalidTarget)
		}
		headers.Set(opts.APIKeyHeader, opts.APIKey)
	}

	timeout := opts.Timeout
	if timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout %s", ErrInvalidTarget, timeout)
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Target{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		headers: headers,
		timeout: timeout,
		client:  client,
	}, nil
}

// BaseURL returns the normalized base URL without a trailing slash.
func (t *Target) BaseURL() string { return t.baseURL }

// Headers returns a copy of the default headers.
func (t *Target) Headers() http.Header { return t.headers.Clone() }

// Timeout returns the per-request timeout.
func (t *Target) Timeout() time.Duration { return t.timeout }

// Client returns the HTTP client requests are sent through.
func (t *Target) Client() *http.Client { return t.client }

// Expect binds an httpexpect instance to the target. Every request it builds
// carries the default headers, never retries and is bound to ctx. client may
// wrap Target.Client; nil uses it directly.
func (t *Target) Expect(ctx context.Context, client httpexpect.Client, handler httpexpect.AssertionHandler) *httpexpect.Expect {
	if client == nil {
		client = t.client
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e := httpexpect.WithConfig(httpexpect.Config{
		BaseURL:          t.baseURL,
		Client:           client,
		AssertionHandler: handler,
	})
	headers := t.headers
	return e.Builder(func(req *httpexpect.Request) {
		for name, values := range headers {
			for _, value := range values {
				req.WithHeader(name, value)
			}
		}
		req.WithRetryPolicy(httpexpect.DontRetry)
		req.WithContext(ctx)
	})
}

// ExpectWithReporter binds the target to a test reporter such as *testing.T or
// a Ginkgo reporter. Failures go straight to the reporter.
func (t *Target) ExpectWithReporter(ctx context.Context, reporter httpexpect.Reporter) *httpexpect.Expect {
	return t.Expect(ctx, nil, &httpexpect.DefaultAssertionHandler{
		Reporter:  reporter,
		Formatter: &httpexpect.DefaultFormatter{},
	})
}
