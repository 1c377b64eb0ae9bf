package harness

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gavv/httpexpect/v2"
)

// RequestSpec describes one call. Path may carry {name} placeholders filled
// from PathParams. Headers override target defaults with the same canonical
// name. Body, when set, is sent as JSON.
type RequestSpec struct {
	Method     string
	Path       string
	PathParams map[string]any
	Query      map[string]string
	Headers    map[string]string
	Body       any
}

// Build turns the request description into an httpexpect request ready for Expect.
func (s RequestSpec) Build(e *httpexpect.Expect) *httpexpect.Request {
	method := strings.ToUpper(strings.TrimSpace(s.Method))
	if method == "" {
		method = http.MethodGet
	}
	req := e.Request(method, s.Path)
	for _, name := range sortedKeys(s.PathParams) {
		req.WithPath(name, s.PathParams[name])
	}
	for _, name := range sortedKeys(s.Query) {
		req.WithQuery(name, s.Query[name])
	}
	if len(s.Headers) > 0 {
		overrides := make(http.Header, len(s.Headers))
		for name, value := range s.Headers {
			overrides.Set(name, value)
		}
		req.WithTransformer(func(r *http.Request) {
			for name, values := range overrides {
				r.Header[name] = append([]string(nil), values...)
			}
		})
	}
	if s.Body != nil {
		req.WithJSON(s.Body)
	}
	return req
}

// Describe renders the method and path template for reports and logs.
func (s RequestSpec) Describe() string {
	method := strings.ToUpper(strings.TrimSpace(s.Method))
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + s.Path
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
