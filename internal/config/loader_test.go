package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) []string
		wantErr string
		assert  func(t *testing.T, cfg Config)
	}{
		{
			name:  "returns defaults when no overrides",
			setup: func(t *testing.T) []string { return nil },
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "https://reqres.in/api", cfg.Target.BaseURL)
				require.Equal(t, "x-api-key", cfg.Target.APIKeyHeader)
				require.Equal(t, "10s", cfg.Target.Timeout)
				require.True(t, cfg.Suite.Builtin)
				require.True(t, cfg.Contract.Enabled)
				require.Equal(t, 9464, cfg.Monitor.Listen.Port)
				require.Empty(t, cfg.Scenarios)
			},
		},
		{
			name: "merges file overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "usercheck.yaml")
				require.NoError(t, os.WriteFile(path, []byte("target:\n  baseURL: http://127.0.0.1:8080/api\n  timeout: 2s\nreport:\n  format: json\n"), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "http://127.0.0.1:8080/api", cfg.Target.BaseURL)
				require.Equal(t, "2s", cfg.Target.Timeout)
				require.Equal(t, "json", cfg.Report.Format)
				require.Equal(t, "reqres-free-v1", cfg.Target.APIKey)
			},
		},
		{
			name: "reads json and toml files",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				jsonPath := filepath.Join(dir, "target.json")
				require.NoError(t, os.WriteFile(jsonPath, []byte(`{"target":{"apiKey":"from-json"}}`), 0o600))
				tomlPath := filepath.Join(dir, "store.toml")
				require.NoError(t, os.WriteFile(tomlPath, []byte("[store]\nhistory = 7\n"), 0o600))
				return []string{jsonPath, tomlPath}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "from-json", cfg.Target.APIKey)
				require.Equal(t, 7, cfg.Store.History)
			},
		},
		{
			name: "prefers env overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "usercheck.yaml")
				require.NoError(t, os.WriteFile(path, []byte("target:\n  apiKey: from-file\n"), 0o600))
				t.Setenv("USERCHECK_TARGET__APIKEY", "from-env")
				t.Setenv("USERCHECK_MONITOR__LISTEN__PORT", "9500")
				t.Setenv("USERCHECK_STORE__TTLSECONDS", "60")
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "from-env", cfg.Target.APIKey)
				require.Equal(t, 9500, cfg.Monitor.Listen.Port)
				require.Equal(t, 60, cfg.Store.TTLSeconds)
			},
		},
		{
			name: "reads inline scenarios",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "usercheck.yaml")
				contents := `scenarios:
  list-page-two:
    tags: [smoke]
    request:
      method: GET
      path: /users
      query:
        page: "2"
    expect:
      status: 200
      fields:
        - path: page
          equals: 2
        - path: data
          minItems: 1
`
				require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Contains(t, cfg.Scenarios, "list-page-two")
				scenario := cfg.Scenarios["list-page-two"]
				require.Equal(t, "2", scenario.Request.Query["page"])
				require.Len(t, scenario.Expect.Fields, 2)
				require.Equal(t, 1, scenario.Expect.Fields[1].MinItems)
				require.Equal(t, []string{"smoke"}, scenario.Tags)
				require.Equal(t, []string{inlineSourceName}, cfg.ScenarioSources)
				require.Contains(t, cfg.InlineScenarios, "list-page-two")
			},
		},
		{
			name: "missing file fails",
			setup: func(t *testing.T) []string {
				return []string{filepath.Join(t.TempDir(), "absent.yaml")}
			},
			wantErr: "not found",
		},
		{
			name: "invalid values fail validation",
			setup: func(t *testing.T) []string {
				t.Setenv("USERCHECK_TARGET__BASEURL", "ftp://example.com")
				return nil
			},
			wantErr: "must be http or https",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files := tc.setup(t)
			cfg, err := NewLoader("USERCHECK", files...).Load(context.Background())
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.assert(t, cfg)
		})
	}
}

func TestLoaderDotenv(t *testing.T) {
	const key = "USERCHECK_TARGET__APIKEY"
	original, had := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, original)
			return
		}
		_ = os.Unsetenv(key)
	})

	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte(key+"=from-dotenv\n"), 0o600))

	cfg, err := NewLoader("USERCHECK").
		WithDotenv(filepath.Join(dir, "missing.env"), dotenv).
		Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Target.APIKey)
}

func TestLoaderDotenvDoesNotOverrideEnvironment(t *testing.T) {
	t.Setenv("USERCHECK_TARGET__APIKEY", "from-env")
	dotenv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("USERCHECK_TARGET__APIKEY=from-dotenv\n"), 0o600))

	cfg, err := NewLoader("USERCHECK").WithDotenv(dotenv).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Target.APIKey)
}

func TestLoaderHonoursCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usercheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("report:\n  format: json\n"), 0o600))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader("USERCHECK", path).Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEnvKey(t *testing.T) {
	loader := NewLoader("USERCHECK")
	require.Equal(t, "target.apiKey", loader.envKey("USERCHECK_TARGET__APIKEY"))
	require.Equal(t, "target.baseURL", loader.envKey("USERCHECK_TARGET__BASEURL"))
	require.Equal(t, "monitor.listen.port", loader.envKey("USERCHECK_MONITOR__LISTEN__PORT"))
	require.Equal(t, "store.redis.tls.caFile", loader.envKey("USERCHECK_STORE__REDIS__TLS__CAFILE"))
	require.Equal(t, "logging.level", loader.envKey("USERCHECK_LOGGING__LEVEL"))
}
