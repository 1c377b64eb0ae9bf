package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/l0p7/usercheck/internal/config"
)

type integrationProcess struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func startServerProcess(t *testing.T, configPath string, env map[string]string, args ...string) *integrationProcess {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "go", append([]string{"run", ".", "--config", configPath}, args...)...)
	cmd.Dir = "."
	cacheRoot := filepath.Join(os.TempDir(), "usercheck-integration")
	cacheDir := filepath.Join(cacheRoot, "gocache")
	moduleCache := filepath.Join(cacheRoot, "gomodcache")
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		cancel()
		t.Fatalf("failed to create gocache dir: %v", err)
	}
	if err := os.MkdirAll(moduleCache, 0o750); err != nil {
		cancel()
		t.Fatalf("failed to create gomodcache dir: %v", err)
	}
	cmd.Env = append(os.Environ(), "GOFLAGS=", "GOCACHE="+cacheDir, "GOMODCACHE="+moduleCache)
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		t.Fatalf("failed to start usercheck process: %v", err)
	}

	proc := &integrationProcess{cmd: cmd, cancel: cancel, stdout: stdout, stderr: stderr}
	proc.wg.Add(1)
	go func() {
		defer proc.wg.Done()
		_ = cmd.Wait()
	}()
	return proc
}

func (p *integrationProcess) stop(t *testing.T) {
	t.Helper()
	if p == nil {
		return
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(os.Interrupt)
	}
	p.cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGKILL)
		}
	}
	if t.Failed() {
		if out := strings.TrimSpace(p.stdout.String()); out != "" {
			t.Logf("server stdout:\n%s", out)
		}
		if errOut := strings.TrimSpace(p.stderr.String()); errOut != "" {
			t.Logf("server stderr:\n%s", errOut)
		}
	}
}

func (p *integrationProcess) logs() (string, string) {
	if p == nil {
		return "", ""
	}
	return p.stdout.String(), p.stderr.String()
}

func waitForEndpoint(t *testing.T, client *http.Client, target string, timeout time.Duration, headers map[string]string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, target, nil)
		if err != nil {
			t.Fatalf("failed to build probe request: %v", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req) // #nosec G107 - test helper for local server
		if err == nil {
			status := resp.StatusCode
			if cerr := resp.Body.Close(); cerr != nil {
				t.Fatalf("failed to close readiness probe body: %v", cerr)
			}
			if status < 500 {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not respond successfully within %v", timeout)
}

func writeIntegrationConfig(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("failed to ensure config folder: %v", err)
	}
	cfg := map[string]any{
		"logging": map[string]any{
			"format": "text",
			"level":  "warn",
		},
		"monitor": map[string]any{
			"interval": "1h",
			"listen": map[string]any{
				"address": "127.0.0.1",
			},
		},
		"suite": map[string]any{
			"templatesFolder":     dir,
			"templatesAllowEnv":   true,
			"templatesAllowedEnv": []string{"USERCHECK_TEST_USER_ID"},
			"vars": map[string]string{
				"expected_id": "int(env.USERCHECK_TEST_USER_ID)",
			},
		},
		"scenarios": map[string]any{
			"env-user": map[string]any{
				"tags": []string{"integration"},
				"request": map[string]any{
					"method":     "GET",
					"path":       "/users/{id}",
					"pathParams": map[string]string{"id": `{{ env "USERCHECK_TEST_USER_ID" }}`},
				},
				"expect": map[string]any{
					"status":     200,
					"conditions": []string{"int(body.data.id) == vars.expected_id"},
				},
			},
		},
	}

	contents, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	path := filepath.Join(dir, "integration-config.json")
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func allocatePort(t *testing.T) int {
	t.Helper()
	var lc net.ListenConfig
	l, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to allocate port: %v", err)
	}
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected addr type %T", l.Addr())
	}
	port := addr.Port
	if cerr := l.Close(); cerr != nil {
		t.Fatalf("failed to close listener: %v", cerr)
	}
	return port
}

func integrationURL(port int, path string) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		Path:   path,
	}
	return u.String()
}

func TestIntegrationMonitorMode(t *testing.T) {
	if os.Getenv("USERCHECK_INTEGRATION") == "" {
		t.Skip("set USERCHECK_INTEGRATION=1 to run integration tests")
	}
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	temp := t.TempDir()
	port := allocatePort(t)
	configPath := writeIntegrationConfig(t, temp)
	env := map[string]string{
		"USERCHECK_MONITOR__LISTEN__PORT": strconv.Itoa(port),
		"USERCHECK_TEST_USER_ID":          "2",
	}

	// The config file leaves the port to the environment layer.
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.NewLoader("USERCHECK", configPath).Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load integration config: %v", err)
	}
	if cfg.Monitor.Listen.Port != port {
		t.Fatalf("expected port %d from environment, got %d", port, cfg.Monitor.Listen.Port)
	}
	if _, ok := cfg.Scenarios["env-user"]; !ok {
		t.Fatalf("expected env-user scenario to be configured")
	}

	process := startServerProcess(t, configPath, env, "--fake", "--monitor", "--include", "env-user,smoke")
	defer process.stop(t)

	client := &http.Client{Timeout: 5 * time.Second}
	waitForEndpoint(t, client, integrationURL(port, "/reports/latest"), 45*time.Second, nil)

	e := httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  integrationURL(port, ""),
		Reporter: httpexpect.NewRequireReporter(t),
		Client:   client,
	})

	e.GET("/healthz").Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("status", "pass").
		HasValue("scenarios", 3)

	report := e.GET("/reports/latest").Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("ok", true).
		Value("report").Object()
	runID := report.Value("runId").String().NotEmpty().Raw()
	names := report.Value("results").Array()
	names.Length().IsEqual(3)
	names.Value(2).Object().HasValue("name", "env-user").HasValue("outcome", "pass")

	e.GET("/reports/{id}", runID).Expect().
		Status(http.StatusOK).
		JSON().Object().HasValue("id", runID)
	e.GET("/reports/{id}", "missing").Expect().
		Status(http.StatusNotFound)

	e.GET("/metrics").Expect().
		Status(http.StatusOK).
		Body().Contains("usercheck_scenario_runs_total")

	t.Logf("monitor responded from %s", integrationURL(port, ""))
}
