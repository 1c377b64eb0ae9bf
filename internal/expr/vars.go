package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l0p7/usercheck/internal/templates"
)

// VariableResolver resolves suite vars. Values containing {{ render as
// templates; everything else evaluates as CEL.
type VariableResolver struct {
	celEnv   *Environment
	renderer *templates.Renderer
}

// NewVariableResolver builds a resolver around the supplied renderer.
func NewVariableResolver(renderer *templates.Renderer) (*VariableResolver, error) {
	celEnv, err := NewVariableEnvironment()
	if err != nil {
		return nil, fmt.Errorf("vars: create CEL environment: %w", err)
	}
	if renderer == nil {
		renderer = templates.NewRenderer(nil)
	}
	return &VariableResolver{celEnv: celEnv, renderer: renderer}, nil
}

// Resolve evaluates every definition in name order so later vars may refer to
// earlier ones through vars.<name>.
func (r *VariableResolver) Resolve(definitions map[string]string) (map[string]any, error) {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	resolved := make(map[string]any, len(definitions))
	env := r.renderer.Environment()
	for _, name := range names {
		data := map[string]any{"env": env, "vars": resolved}
		value, err := r.Evaluate(definitions[name], data)
		if err != nil {
			return nil, fmt.Errorf("vars: %s: %w", name, err)
		}
		resolved[name] = value
	}
	return resolved, nil
}

// Evaluate executes a single expression against data.
func (r *VariableResolver) Evaluate(expression string, data map[string]any) (any, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return "", nil
	}
	if strings.Contains(trimmed, "{{") {
		tmpl, err := r.renderer.CompileInline("var", trimmed)
		if err != nil {
			return nil, err
		}
		return tmpl.Render(data)
	}
	prog, err := r.celEnv.CompileValue(trimmed)
	if err != nil {
		return nil, err
	}
	return prog.Eval(data)
}
