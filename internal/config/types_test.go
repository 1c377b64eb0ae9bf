package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "base url required",
			mutate:  func(cfg *Config) { cfg.Target.BaseURL = "" },
			wantErr: "target.baseURL required",
		},
		{
			name:    "base url needs scheme",
			mutate:  func(cfg *Config) { cfg.Target.BaseURL = "reqres.in/api" },
			wantErr: "must be http or https",
		},
		{
			name:    "base url needs host",
			mutate:  func(cfg *Config) { cfg.Target.BaseURL = "https:///api" },
			wantErr: "missing host",
		},
		{
			name:    "timeout must parse",
			mutate:  func(cfg *Config) { cfg.Target.Timeout = "soon" },
			wantErr: "target.timeout invalid",
		},
		{
			name:    "timeout must be positive",
			mutate:  func(cfg *Config) { cfg.Target.Timeout = "0s" },
			wantErr: "must be positive",
		},
		{
			name:    "api key needs header",
			mutate:  func(cfg *Config) { cfg.Target.APIKeyHeader = "" },
			wantErr: "apiKeyHeader required",
		},
		{
			name: "blank api key needs no header",
			mutate: func(cfg *Config) {
				cfg.Target.APIKey = ""
				cfg.Target.APIKeyHeader = ""
			},
		},
		{
			name:    "unknown report format",
			mutate:  func(cfg *Config) { cfg.Report.Format = "xml" },
			wantErr: "report.format unsupported",
		},
		{
			name: "scenario sources are exclusive",
			mutate: func(cfg *Config) {
				cfg.Suite.ScenariosFile = "users.yaml"
				cfg.Suite.ScenariosFolder = "scenarios"
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "monitor interval checked when enabled",
			mutate: func(cfg *Config) {
				cfg.Monitor.Enabled = true
				cfg.Monitor.Interval = "-1m"
			},
			wantErr: "monitor.interval",
		},
		{
			name: "monitor interval ignored when disabled",
			mutate: func(cfg *Config) {
				cfg.Monitor.Interval = "never"
			},
		},
		{
			name: "monitor port checked when enabled",
			mutate: func(cfg *Config) {
				cfg.Monitor.Enabled = true
				cfg.Monitor.Listen.Port = 70000
			},
			wantErr: "monitor.listen.port invalid",
		},
		{
			name:    "negative ttl",
			mutate:  func(cfg *Config) { cfg.Store.TTLSeconds = -1 },
			wantErr: "store.ttlSeconds invalid",
		},
		{
			name:    "negative history",
			mutate:  func(cfg *Config) { cfg.Store.History = -5 },
			wantErr: "store.history invalid",
		},
		{
			name:    "unknown store backend",
			mutate:  func(cfg *Config) { cfg.Store.Backend = "etcd" },
			wantErr: "store.backend unsupported",
		},
		{
			name:    "redis backend needs address",
			mutate:  func(cfg *Config) { cfg.Store.Backend = "redis" },
			wantErr: "store.redis.address required",
		},
		{
			name: "redis backend with address",
			mutate: func(cfg *Config) {
				cfg.Store.Backend = "Redis"
				cfg.Store.Redis.Address = "127.0.0.1:6379"
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}

	var nilCfg *Config
	require.Error(t, nilCfg.Validate())
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "https://reqres.in/api", cfg.Target.BaseURL)
	require.Equal(t, "x-api-key", cfg.Target.APIKeyHeader)
	require.Equal(t, "reqres-free-v1", cfg.Target.APIKey)
	require.Equal(t, "text", cfg.Report.Format)
	require.Equal(t, "memory", cfg.Store.Backend)
	require.Equal(t, 50, cfg.Store.History)

	timeout, err := cfg.Target.TimeoutDuration()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, timeout)

	interval, err := cfg.Monitor.IntervalDuration()
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, interval)
}
