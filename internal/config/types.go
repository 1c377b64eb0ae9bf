package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every harness option plus the scenario definitions once loaded.
type Config struct {
	Target    TargetConfig              `koanf:"target"`
	Logging   LoggingConfig             `koanf:"logging"`
	Report    ReportConfig              `koanf:"report"`
	Suite     SuiteConfig               `koanf:"suite"`
	Contract  ContractConfig            `koanf:"contract"`
	Metrics   MetricsConfig             `koanf:"metrics"`
	Monitor   MonitorConfig             `koanf:"monitor"`
	Store     StoreConfig               `koanf:"store"`
	Scenarios map[string]ScenarioConfig `koanf:"scenarios"`

	InlineScenarios map[string]ScenarioConfig `koanf:"-"`

	// ScenarioSources records which files contributed scenario definitions.
	ScenarioSources []string `koanf:"-"`
	// SkippedDefinitions captures duplicate or invalid scenarios the loader
	// quarantined instead of failing the whole run.
	SkippedDefinitions []DefinitionSkip `koanf:"-"`
}

// TargetConfig describes the remote service under test. It is read once and
// never mutated after the run starts.
type TargetConfig struct {
	BaseURL      string            `koanf:"baseURL"`
	APIKeyHeader string            `koanf:"apiKeyHeader"`
	APIKey       string            `koanf:"apiKey"`
	Timeout      string            `koanf:"timeout"`
	Headers      map[string]string `koanf:"headers"`
}

// TimeoutDuration parses the configured per-request timeout.
func (t TargetConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(t.Timeout) == "" {
		return 0, errors.New("config: target.timeout required")
	}
	d, err := time.ParseDuration(strings.TrimSpace(t.Timeout))
	if err != nil {
		return 0, fmt.Errorf("config: target.timeout invalid: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: target.timeout must be positive: %s", t.Timeout)
	}
	return d, nil
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ReportConfig selects how the run report is rendered.
type ReportConfig struct {
	Format string `koanf:"format"`
	Output string `koanf:"output"`
}

// SuiteConfig selects which scenarios run and where declarative ones come from.
type SuiteConfig struct {
	Builtin             bool              `koanf:"builtin"`
	Observations        bool              `koanf:"observations"`
	Include             []string          `koanf:"include"`
	Exclude             []string          `koanf:"exclude"`
	ScenariosFolder     string            `koanf:"scenariosFolder"`
	ScenariosFile       string            `koanf:"scenariosFile"`
	TemplatesFolder     string            `koanf:"templatesFolder"`
	TemplatesAllowEnv   bool              `koanf:"templatesAllowEnv"`
	TemplatesAllowedEnv []string          `koanf:"templatesAllowedEnv"`
	Vars                map[string]string `koanf:"vars"`
}

// ContractConfig toggles OpenAPI response validation.
type ContractConfig struct {
	Enabled  bool   `koanf:"enabled"`
	SpecFile string `koanf:"specFile"`
}

// MetricsConfig controls where one-shot runs leave their metrics.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// MonitorConfig drives the long-running mode.
type MonitorConfig struct {
	Enabled  bool         `koanf:"enabled"`
	Interval string       `koanf:"interval"`
	Listen   ListenConfig `koanf:"listen"`
}

// IntervalDuration parses the monitor interval.
func (m MonitorConfig) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(m.Interval))
	if err != nil {
		return 0, fmt.Errorf("config: monitor.interval invalid: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: monitor.interval must be positive: %s", m.Interval)
	}
	return d, nil
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

type StoreConfig struct {
	Backend    string           `koanf:"backend"`
	TTLSeconds int              `koanf:"ttlSeconds"`
	History    int              `koanf:"history"`
	Redis      StoreRedisConfig `koanf:"redis"`
}

type StoreRedisConfig struct {
	Address  string              `koanf:"address"`
	Username string              `koanf:"username"`
	Password string              `koanf:"password"`
	DB       int                 `koanf:"db"`
	TLS      StoreRedisTLSConfig `koanf:"tls"`
}

type StoreRedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// DefinitionSkip describes a scenario the loader ignored because it violated
// invariants, for example a duplicate name across files.
type DefinitionSkip struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Reason  string   `json:"reason"`
	Sources []string `json:"sources"`
}

// ScenarioConfig is a declarative scenario: one request and its expectations.
type ScenarioConfig struct {
	Description string                `koanf:"description" json:"description,omitempty"`
	Tags        []string              `koanf:"tags" json:"tags,omitempty"`
	Request     ScenarioRequestConfig `koanf:"request" json:"request"`
	Expect      ScenarioExpectConfig  `koanf:"expect" json:"expect"`
}

// ScenarioRequestConfig describes the request. Path params, query values,
// header values and the body are sprig templates rendered with suite vars.
type ScenarioRequestConfig struct {
	Method     string            `koanf:"method" json:"method"`
	Path       string            `koanf:"path" json:"path"`
	PathParams map[string]string `koanf:"pathParams" json:"pathParams,omitempty"`
	Query      map[string]string `koanf:"query" json:"query,omitempty"`
	Headers    map[string]string `koanf:"headers" json:"headers,omitempty"`
	Body       string            `koanf:"body" json:"body,omitempty"`
	BodyFile   string            `koanf:"bodyFile" json:"bodyFile,omitempty"`
}

// ScenarioExpectConfig lists what the response must satisfy.
type ScenarioExpectConfig struct {
	Status     int                `koanf:"status" json:"status"`
	EmptyBody  bool               `koanf:"emptyBody" json:"emptyBody,omitempty"`
	Fields     []FieldExpectation `koanf:"fields" json:"fields,omitempty"`
	Conditions []string           `koanf:"conditions" json:"conditions,omitempty"`
}

// FieldExpectation asserts on one JSON path of the response body, written
// as data.id or data[0].id.
type FieldExpectation struct {
	Path     string `koanf:"path" json:"path"`
	Equals   any    `koanf:"equals" json:"equals,omitempty"`
	NotNull  bool   `koanf:"notNull" json:"notNull,omitempty"`
	NotEmpty bool   `koanf:"notEmpty" json:"notEmpty,omitempty"`
	MinItems int    `koanf:"minItems" json:"minItems,omitempty"`
	Absent   bool   `koanf:"absent" json:"absent,omitempty"`
}

// Validate enforces the invariants a run needs before any request is sent.
// Every error here is a configuration failure and fatal to the run.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if err := validateBaseURL(c.Target.BaseURL); err != nil {
		return err
	}
	if _, err := c.Target.TimeoutDuration(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Target.APIKey) != "" && strings.TrimSpace(c.Target.APIKeyHeader) == "" {
		return errors.New("config: target.apiKeyHeader required when target.apiKey is set")
	}
	switch strings.ToLower(strings.TrimSpace(c.Report.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: report.format unsupported: %s", c.Report.Format)
	}
	if c.Suite.ScenariosFolder != "" && c.Suite.ScenariosFile != "" {
		return errors.New("config: suite.scenariosFolder and suite.scenariosFile are mutually exclusive")
	}
	if c.Monitor.Enabled {
		if _, err := c.Monitor.IntervalDuration(); err != nil {
			return err
		}
		if c.Monitor.Listen.Port <= 0 || c.Monitor.Listen.Port > 65535 {
			return fmt.Errorf("config: monitor.listen.port invalid: %d", c.Monitor.Listen.Port)
		}
	}
	if c.Store.TTLSeconds < 0 {
		return fmt.Errorf("config: store.ttlSeconds invalid: %d", c.Store.TTLSeconds)
	}
	if c.Store.History < 0 {
		return fmt.Errorf("config: store.history invalid: %d", c.Store.History)
	}
	switch strings.TrimSpace(strings.ToLower(c.Store.Backend)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Store.Redis.Address) == "" {
			return errors.New("config: store.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: store.backend unsupported: %s", c.Store.Backend)
	}
	return nil
}

func validateBaseURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return errors.New("config: target.baseURL required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("config: target.baseURL invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: target.baseURL must be http or https: %s", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("config: target.baseURL missing host: %s", raw)
	}
	return nil
}

// DefaultConfig returns the baseline pointing at the public reqres service.
func DefaultConfig() Config {
	return Config{
		Target: TargetConfig{
			BaseURL:      "https://reqres.in/api",
			APIKeyHeader: "x-api-key",
			APIKey:       "reqres-free-v1",
			Timeout:      "10s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Report: ReportConfig{
			Format: "text",
		},
		Suite: SuiteConfig{
			Builtin: true,
		},
		Contract: ContractConfig{
			Enabled: true,
		},
		Monitor: MonitorConfig{
			Interval: "5m",
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    9464,
			},
		},
		Store: StoreConfig{
			Backend:    "memory",
			TTLSeconds: 86400,
			History:    50,
		},
	}
}
