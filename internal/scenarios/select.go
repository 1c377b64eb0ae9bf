package scenarios

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/l0p7/usercheck/internal/config"
	"github.com/l0p7/usercheck/internal/harness"
	"github.com/l0p7/usercheck/internal/templates"
)

// Select keeps scenarios matching include (by name or tag; empty keeps all)
// and drops those matching exclude. Order is preserved.
func Select(all []harness.Scenario, include, exclude []string) []harness.Scenario {
	include = normalize(include)
	exclude = normalize(exclude)
	out := make([]harness.Scenario, 0, len(all))
	for _, s := range all {
		if len(include) > 0 && !matches(s, include) {
			continue
		}
		if matches(s, exclude) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func matches(s harness.Scenario, selectors []string) bool {
	for _, sel := range selectors {
		if sel == s.Name || s.HasTag(sel) {
			return true
		}
	}
	return false
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for part := range strings.SplitSeq(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Suite assembles the scenarios a run executes: the catalog when enabled,
// observation probes when enabled, then declarative scenarios, filtered by
// the include and exclude lists. A declarative scenario may not reuse a
// catalog name.
func Suite(suite config.SuiteConfig, declared map[string]config.ScenarioConfig, logger *slog.Logger) ([]harness.Scenario, error) {
	var all []harness.Scenario
	if suite.Builtin {
		all = append(all, Builtin()...)
	}
	if suite.Observations {
		all = append(all, Observations()...)
	}

	if len(declared) > 0 || len(suite.Vars) > 0 {
		renderer, err := rendererFor(suite)
		if err != nil {
			return nil, err
		}
		compiler, err := NewCompiler(renderer, suite.Vars)
		if err != nil {
			return nil, err
		}
		compiled, err := compiler.Compile(declared)
		if err != nil {
			return nil, err
		}
		for _, s := range compiled {
			if slices.ContainsFunc(all, func(existing harness.Scenario) bool { return existing.Name == s.Name }) {
				return nil, fmt.Errorf("scenarios: %q reuses a built-in scenario name", s.Name)
			}
		}
		all = append(all, compiled...)
	}

	selected := Select(all, suite.Include, suite.Exclude)
	if logger != nil {
		logger.Debug("suite assembled", slog.Int("available", len(all)), slog.Int("selected", len(selected)))
	}
	return selected, nil
}

func rendererFor(suite config.SuiteConfig) (*templates.Renderer, error) {
	if suite.TemplatesFolder == "" && !suite.TemplatesAllowEnv {
		return templates.NewRenderer(nil), nil
	}
	sandbox, err := templates.NewSandbox(suite.TemplatesFolder, suite.TemplatesAllowEnv, suite.TemplatesAllowedEnv)
	if err != nil {
		return nil, fmt.Errorf("scenarios: templates sandbox: %w", err)
	}
	return templates.NewRenderer(sandbox), nil
}
