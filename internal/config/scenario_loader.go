package config

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/l0p7/usercheck/internal/expr"
)

const inlineSourceName = "inline-config"

// ScenarioBundle captures the merged scenario definitions after loading every
// configured source, together with what was skipped and why.
type ScenarioBundle struct {
	Scenarios map[string]ScenarioConfig
	Sources   []string
	Skipped   []DefinitionSkip
}

// ScenarioDocument is the shape of a scenario file.
type ScenarioDocument struct {
	Scenarios map[string]ScenarioConfig `koanf:"scenarios" json:"scenarios"`
}

type scenarioAggregator struct {
	scenarios map[string]ScenarioConfig
	origins   map[string]string
	skips     map[string]*DefinitionSkip
	sources   map[string]struct{}
}

func newScenarioAggregator() *scenarioAggregator {
	return &scenarioAggregator{
		scenarios: make(map[string]ScenarioConfig),
		origins:   make(map[string]string),
		skips:     make(map[string]*DefinitionSkip),
		sources:   make(map[string]struct{}),
	}
}

func (a *scenarioAggregator) addDocument(doc ScenarioDocument, source string) {
	if source != "" {
		a.sources[source] = struct{}{}
	}
	for name, cfg := range doc.Scenarios {
		a.addScenario(name, cfg, source)
	}
}

func (a *scenarioAggregator) addScenario(name string, cfg ScenarioConfig, source string) {
	if existing, ok := a.skips[name]; ok {
		existing.Sources = appendUnique(existing.Sources, source)
		return
	}
	if prev, ok := a.origins[name]; ok {
		a.recordSkip(name, "duplicate definition", prev, source)
		delete(a.origins, name)
		delete(a.scenarios, name)
		return
	}
	a.origins[name] = source
	a.scenarios[name] = cfg
}

func (a *scenarioAggregator) recordSkip(name, reason string, sources ...string) {
	skip, ok := a.skips[name]
	if !ok {
		skip = &DefinitionSkip{Kind: "scenario", Name: name, Reason: reason, Sources: []string{}}
		a.skips[name] = skip
	} else if skip.Reason == "" {
		skip.Reason = reason
	}
	for _, src := range sources {
		skip.Sources = appendUnique(skip.Sources, src)
	}
}

// quarantineInvalid drops definitions the runner could never execute so the
// problem shows up in SkippedDefinitions instead of as a failed scenario.
func (a *scenarioAggregator) quarantineInvalid(env *expr.Environment) {
	for name, cfg := range a.scenarios {
		if err := validateScenario(cfg, env); err != nil {
			a.recordSkip(name, err.Error(), a.origins[name])
			delete(a.origins, name)
			delete(a.scenarios, name)
		}
	}
}

func (a *scenarioAggregator) bundle() ScenarioBundle {
	scenarios := maps.Clone(a.scenarios)
	if scenarios == nil {
		scenarios = make(map[string]ScenarioConfig)
	}
	skipped := make([]DefinitionSkip, 0, len(a.skips))
	for _, skip := range a.skips {
		sort.Strings(skip.Sources)
		skipped = append(skipped, *skip)
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Name < skipped[j].Name })
	sources := make([]string, 0, len(a.sources))
	for src := range a.sources {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return ScenarioBundle{Scenarios: scenarios, Sources: sources, Skipped: skipped}
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	if !slices.Contains(list, value) {
		list = append(list, value)
	}
	return list
}

func buildScenarioBundle(ctx context.Context, inline map[string]ScenarioConfig, suite SuiteConfig) (ScenarioBundle, error) {
	agg := newScenarioAggregator()
	if len(inline) > 0 {
		agg.addDocument(ScenarioDocument{Scenarios: inline}, inlineSourceName)
	}

	files, err := collectScenarioSources(ctx, suite)
	if err != nil {
		return ScenarioBundle{}, err
	}
	for _, path := range files {
		select {
		case <-ctx.Done():
			return ScenarioBundle{}, ctx.Err()
		default:
		}
		doc, err := loadScenarioDocument(path)
		if err != nil {
			return ScenarioBundle{}, err
		}
		agg.addDocument(doc, path)
	}
	env, err := expr.NewAssertionEnvironment()
	if err != nil {
		return ScenarioBundle{}, err
	}
	agg.quarantineInvalid(env)
	return agg.bundle(), nil
}

func validateScenario(cfg ScenarioConfig, env *expr.Environment) error {
	switch strings.ToUpper(strings.TrimSpace(cfg.Request.Method)) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead:
	case "":
		return fmt.Errorf("request.method required")
	default:
		return fmt.Errorf("request.method unsupported: %s", cfg.Request.Method)
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.Request.Path), "/") {
		return fmt.Errorf("request.path must start with /: %q", cfg.Request.Path)
	}
	if cfg.Request.Body != "" && cfg.Request.BodyFile != "" {
		return fmt.Errorf("request.body and request.bodyFile are mutually exclusive")
	}
	if cfg.Expect.Status < 100 || cfg.Expect.Status > 599 {
		return fmt.Errorf("expect.status invalid: %d", cfg.Expect.Status)
	}
	for idx, field := range cfg.Expect.Fields {
		if strings.TrimSpace(field.Path) == "" {
			return fmt.Errorf("expect.fields[%d].path required", idx)
		}
		if field.Absent && !endsInObjectKey(field.Path) {
			return fmt.Errorf("expect.fields[%d].path must end in an object key when absent is set: %q", idx, field.Path)
		}
		if field.MinItems < 0 {
			return fmt.Errorf("expect.fields[%d].minItems invalid: %d", idx, field.MinItems)
		}
	}
	for idx, condition := range cfg.Expect.Conditions {
		trimmed := strings.TrimSpace(condition)
		if trimmed == "" {
			continue
		}
		if _, err := env.Compile(trimmed); err != nil {
			return fmt.Errorf("expect.conditions[%d]: %w", idx, err)
		}
	}
	return nil
}

// endsInObjectKey reports whether the last segment of a field path names an
// object key rather than an array index.
func endsInObjectKey(path string) bool {
	path = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(path), "$"), ".")
	last := path[strings.LastIndex(path, ".")+1:]
	return last != "" && !strings.ContainsAny(last, "[]")
}

func collectScenarioSources(ctx context.Context, suite SuiteConfig) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if suite.ScenariosFile != "" {
		info, err := os.Stat(suite.ScenariosFile)
		if err != nil {
			return nil, fmt.Errorf("config: scenarios file %s: %w", suite.ScenariosFile, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("config: scenarios file %s: expected a file, found directory", suite.ScenariosFile)
		}
		return []string{suite.ScenariosFile}, nil
	}
	if suite.ScenariosFolder == "" {
		return nil, nil
	}
	stat, err := os.Stat(suite.ScenariosFolder)
	if err != nil {
		return nil, fmt.Errorf("config: scenarios folder %s: %w", suite.ScenariosFolder, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("config: scenarios folder %s is not a directory", suite.ScenariosFolder)
	}
	var files []string
	err = filepath.WalkDir(suite.ScenariosFolder, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isSupportedScenarioFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("config: walk scenarios folder %s: %w", suite.ScenariosFolder, err)
	}
	sort.Strings(files)
	return files, nil
}

func loadScenarioDocument(path string) (ScenarioDocument, error) {
	parser, err := parserFor(path)
	if err != nil {
		return ScenarioDocument{}, err
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return ScenarioDocument{}, fmt.Errorf("config: load scenarios from %s: %w", path, err)
	}
	var doc ScenarioDocument
	if err := k.Unmarshal("", &doc); err != nil {
		return ScenarioDocument{}, fmt.Errorf("config: decode scenarios from %s: %w", path, err)
	}
	if doc.Scenarios == nil {
		doc.Scenarios = make(map[string]ScenarioConfig)
	}
	return doc, nil
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported scenarios file extension %s", ext)
	}
}

func isSupportedScenarioFile(path string) bool {
	_, err := parserFor(path)
	return err == nil
}

func cloneScenarioMap(in map[string]ScenarioConfig) map[string]ScenarioConfig {
	if len(in) == 0 {
		return nil
	}
	return maps.Clone(in)
}
