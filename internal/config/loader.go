package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the configuration while respecting env > file > default
// precedence. Dotenv files feed the process environment and never override a
// variable that is already set.
type Loader struct {
	envPrefix string
	files     []string
	dotenv    []string
}

// NewLoader prepares a config hydrator for the given env prefix and files.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// WithDotenv registers .env files read before the environment provider runs.
// Missing files are ignored so the same invocation works in CI where the
// variables are set directly.
func (l *Loader) WithDotenv(paths ...string) *Loader {
	l.dotenv = append(l.dotenv, paths...)
	return l
}

// Load assembles the effective snapshot and the scenario bundle.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(DefaultConfig()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			parser = yaml.Parser()
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := l.loadDotenv(); err != nil {
		return Config{}, err
	}

	if l.envPrefix != "" {
		if err := k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.InlineScenarios = cloneScenarioMap(cfg.Scenarios)

	bundle, err := buildScenarioBundle(ctx, cfg.InlineScenarios, cfg.Suite)
	if err != nil {
		return Config{}, err
	}
	cfg.Scenarios = bundle.Scenarios
	cfg.ScenarioSources = bundle.Sources
	cfg.SkippedDefinitions = bundle.Skipped
	return cfg, nil
}

func (l *Loader) loadDotenv() error {
	for _, path := range l.dotenv {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: stat dotenv %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load dotenv %s: %w", path, err)
		}
	}
	return nil
}

var canonicalEnvKeys = map[string]string{
	"target.baseurl":            "target.baseURL",
	"target.apikeyheader":       "target.apiKeyHeader",
	"target.apikey":             "target.apiKey",
	"suite.scenariosfolder":     "suite.scenariosFolder",
	"suite.scenariosfile":       "suite.scenariosFile",
	"suite.templatesfolder":     "suite.templatesFolder",
	"suite.templatesallowenv":   "suite.templatesAllowEnv",
	"suite.templatesallowedenv": "suite.templatesAllowedEnv",
	"contract.specfile":         "contract.specFile",
	"store.ttlseconds":          "store.ttlSeconds",
	"store.redis.tls.cafile":    "store.redis.tls.caFile",
}

// envKey maps USERCHECK_TARGET__APIKEY onto target.apiKey. Double underscores
// nest; single underscores are dropped.
func (l *Loader) envKey(s string) string {
	key := strings.TrimPrefix(s, l.envPrefix+"_")
	key = strings.ReplaceAll(key, "__", ".")
	lower := strings.ToLower(key)
	if mapped, ok := canonicalEnvKeys[lower]; ok {
		return mapped
	}
	key = strings.ReplaceAll(key, "_", "")
	return strings.ToLower(key)
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"target": map[string]any{
			"baseURL":      cfg.Target.BaseURL,
			"apiKeyHeader": cfg.Target.APIKeyHeader,
			"apiKey":       cfg.Target.APIKey,
			"timeout":      cfg.Target.Timeout,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
		"report": map[string]any{
			"format": cfg.Report.Format,
			"output": cfg.Report.Output,
		},
		"suite": map[string]any{
			"builtin":           cfg.Suite.Builtin,
			"observations":      cfg.Suite.Observations,
			"scenariosFolder":   cfg.Suite.ScenariosFolder,
			"scenariosFile":     cfg.Suite.ScenariosFile,
			"templatesFolder":   cfg.Suite.TemplatesFolder,
			"templatesAllowEnv": cfg.Suite.TemplatesAllowEnv,
		},
		"contract": map[string]any{
			"enabled":  cfg.Contract.Enabled,
			"specFile": cfg.Contract.SpecFile,
		},
		"metrics": map[string]any{
			"textfile": cfg.Metrics.Textfile,
		},
		"monitor": map[string]any{
			"enabled":  cfg.Monitor.Enabled,
			"interval": cfg.Monitor.Interval,
			"listen": map[string]any{
				"address": cfg.Monitor.Listen.Address,
				"port":    cfg.Monitor.Listen.Port,
			},
		},
		"store": map[string]any{
			"backend":    cfg.Store.Backend,
			"ttlSeconds": cfg.Store.TTLSeconds,
			"history":    cfg.Store.History,
			"redis": map[string]any{
				"address":  cfg.Store.Redis.Address,
				"username": cfg.Store.Redis.Username,
				"password": cfg.Store.Redis.Password,
				"db":       cfg.Store.Redis.DB,
				"tls": map[string]any{
					"enabled": cfg.Store.Redis.TLS.Enabled,
					"caFile":  cfg.Store.Redis.TLS.CAFile,
				},
			},
		},
	}
}
