package server

import (
	"net/http"
	"strings"
)

// MonitorHTTP is the surface the router needs from the monitor.
type MonitorHTTP interface {
	ServeHealth(http.ResponseWriter, *http.Request)
	ServeLatest(http.ResponseWriter, *http.Request)
	ServeReport(http.ResponseWriter, *http.Request, string)
	ServeMetrics(http.ResponseWriter, *http.Request)
	WriteError(http.ResponseWriter, int, string)
}

// NewMonitorHandler dispatches the monitor endpoints:
//
//	GET /healthz          latest suite verdict
//	GET /reports/latest   latest stored report
//	GET /reports/{id}     stored report by run id
//	GET /metrics          Prometheus exposition
func NewMonitorHandler(m MonitorHTTP) http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "monitor unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, id, ok := parseRoute(r.URL.Path)
		if !ok {
			m.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			m.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		switch route {
		case "healthz":
			m.ServeHealth(w, r)
		case "latest":
			m.ServeLatest(w, r)
		case "report":
			m.ServeReport(w, r, id)
		case "metrics":
			m.ServeMetrics(w, r)
		}
	})
}

func parseRoute(path string) (string, string, bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.Split(trimmed, "/")
	switch len(parts) {
	case 1:
		switch strings.ToLower(parts[0]) {
		case "health", "healthz":
			return "healthz", "", true
		case "metrics":
			return "metrics", "", true
		}
	case 2:
		if strings.ToLower(parts[0]) != "reports" || parts[1] == "" {
			return "", "", false
		}
		if strings.ToLower(parts[1]) == "latest" {
			return "latest", "", true
		}
		return "report", parts[1], true
	}
	return "", "", false
}
