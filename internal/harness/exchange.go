package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/l0p7/usercheck/internal/metrics"
)

// Exchange is one request/response pair as it crossed the wire.
type Exchange struct {
	Request *http.Request
	Status  int
	Header  http.Header
	Body    []byte
	Latency time.Duration
	Err     error
}

// JSONBody decodes the body, returning nil when it is empty or not JSON.
func (x Exchange) JSONBody() any {
	if len(bytes.TrimSpace(x.Body)) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(x.Body, &decoded); err != nil {
		return nil
	}
	return decoded
}

// recordingClient captures every exchange so checks that run outside
// httpexpect (conditions, contract validation, notes) see the same bytes.
type recordingClient struct {
	inner     httpexpect.Client
	recorder  *metrics.Recorder
	logger    *slog.Logger
	exchanges []Exchange
}

func (c *recordingClient) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.inner.Do(req)
	ex := Exchange{Request: req, Latency: time.Since(start)}
	if err != nil {
		ex.Err = err
		c.record(ex)
		return nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	ex.Latency = time.Since(start)
	ex.Status = resp.StatusCode
	ex.Header = resp.Header.Clone()
	if readErr == nil && closeErr != nil {
		readErr = closeErr
	}
	if readErr != nil {
		ex.Err = fmt.Errorf("read response body: %w", readErr)
		c.record(ex)
		return nil, ex.Err
	}
	ex.Body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	c.record(ex)
	return resp, nil
}

func (c *recordingClient) record(ex Exchange) {
	c.exchanges = append(c.exchanges, ex)
	c.recorder.ObserveHTTPRequest(ex.Request.Method, ex.Status)
	if c.logger != nil {
		attrs := []any{
			slog.String("method", ex.Request.Method),
			slog.String("url", ex.Request.URL.String()),
			slog.Int("status", ex.Status),
			slog.Duration("latency", ex.Latency),
		}
		if ex.Err != nil {
			attrs = append(attrs, slog.String("error", ex.Err.Error()))
		}
		c.logger.Debug("request sent", attrs...)
	}
}

func (c *recordingClient) last() (Exchange, bool) {
	if len(c.exchanges) == 0 {
		return Exchange{}, false
	}
	return c.exchanges[len(c.exchanges)-1], true
}

func headerMap(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}
