package scenarios

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gavv/httpexpect/v2"
	"github.com/l0p7/usercheck/internal/config"
	"github.com/l0p7/usercheck/internal/expr"
	"github.com/l0p7/usercheck/internal/harness"
	"github.com/l0p7/usercheck/internal/templates"
)

// Compiler turns declarative definitions into runnable scenarios. Suite vars
// are resolved once per compiler.
type Compiler struct {
	renderer *templates.Renderer
	env      *expr.Environment
	vars     map[string]any
}

// NewCompiler resolves vars with renderer. A nil renderer keeps inline
// templates and refuses body files.
func NewCompiler(renderer *templates.Renderer, vars map[string]string) (*Compiler, error) {
	if renderer == nil {
		renderer = templates.NewRenderer(nil)
	}
	resolver, err := expr.NewVariableResolver(renderer)
	if err != nil {
		return nil, err
	}
	resolved, err := resolver.Resolve(vars)
	if err != nil {
		return nil, fmt.Errorf("scenarios: %w", err)
	}
	env, err := expr.NewAssertionEnvironment()
	if err != nil {
		return nil, err
	}
	return &Compiler{renderer: renderer, env: env, vars: resolved}, nil
}

// Vars returns the resolved suite vars.
func (c *Compiler) Vars() map[string]any { return c.vars }

// Compile builds every definition, sorted by name.
func (c *Compiler) Compile(defs map[string]config.ScenarioConfig) ([]harness.Scenario, error) {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]harness.Scenario, 0, len(names))
	for _, name := range names {
		scenario, err := c.CompileOne(name, defs[name])
		if err != nil {
			return nil, err
		}
		out = append(out, scenario)
	}
	return out, nil
}

// CompileOne builds a single definition.
func (c *Compiler) CompileOne(name string, def config.ScenarioConfig) (harness.Scenario, error) {
	data := map[string]any{"vars": c.vars, "env": c.renderer.Environment()}

	pathParams := make(map[string]any, len(def.Request.PathParams))
	for key, raw := range def.Request.PathParams {
		value, err := c.render(name, "pathParams."+key, raw, data)
		if err != nil {
			return harness.Scenario{}, err
		}
		pathParams[key] = value
	}
	query, err := c.renderMap(name, "query", def.Request.Query, data)
	if err != nil {
		return harness.Scenario{}, err
	}
	headers, err := c.renderMap(name, "headers", def.Request.Headers, data)
	if err != nil {
		return harness.Scenario{}, err
	}
	body, err := c.renderBody(name, def.Request, data)
	if err != nil {
		return harness.Scenario{}, err
	}

	conditions := make([]harness.Condition, 0, len(def.Expect.Conditions))
	for idx, source := range def.Expect.Conditions {
		if strings.TrimSpace(source) == "" {
			continue
		}
		program, err := c.env.Compile(source)
		if err != nil {
			return harness.Scenario{}, fmt.Errorf("scenarios: %s: conditions[%d]: %w", name, idx, err)
		}
		conditions = append(conditions, program)
	}

	spec := harness.RequestSpec{
		Method:     strings.ToUpper(strings.TrimSpace(def.Request.Method)),
		Path:       def.Request.Path,
		PathParams: pathParams,
		Query:      query,
		Headers:    headers,
	}
	if body != nil {
		spec.Body = body
	}
	return harness.Scenario{
		Name:        name,
		Description: def.Description,
		Tags:        append([]string(nil), def.Tags...),
		Request:     spec,
		Check:       expectationCheck(def.Expect),
		Conditions:  conditions,
		Vars:        c.vars,
	}, nil
}

func (c *Compiler) render(scenario, field, source string, data map[string]any) (string, error) {
	if !strings.Contains(source, "{{") {
		return source, nil
	}
	tmpl, err := c.renderer.CompileInline(scenario+"."+field, source)
	if err != nil {
		return "", fmt.Errorf("scenarios: %s: %s: %w", scenario, field, err)
	}
	out, err := tmpl.Render(data)
	if err != nil {
		return "", fmt.Errorf("scenarios: %s: %s: %w", scenario, field, err)
	}
	return out, nil
}

func (c *Compiler) renderMap(scenario, field string, in map[string]string, data map[string]any) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for key, raw := range in {
		value, err := c.render(scenario, field+"."+key, raw, data)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func (c *Compiler) renderBody(scenario string, req config.ScenarioRequestConfig, data map[string]any) (json.RawMessage, error) {
	var tmpl *templates.Template
	var err error
	switch {
	case req.BodyFile != "":
		tmpl, err = c.renderer.CompileFile(req.BodyFile)
	case strings.TrimSpace(req.Body) != "":
		tmpl, err = c.renderer.CompileInline(scenario+".body", req.Body)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scenarios: %s: body: %w", scenario, err)
	}
	rendered, err := tmpl.Render(data)
	if err != nil {
		return nil, fmt.Errorf("scenarios: %s: body: %w", scenario, err)
	}
	if !json.Valid([]byte(rendered)) {
		return nil, fmt.Errorf("scenarios: %s: body is not valid JSON after rendering", scenario)
	}
	return json.RawMessage(rendered), nil
}

func expectationCheck(expect config.ScenarioExpectConfig) harness.Check {
	fields := append([]config.FieldExpectation(nil), expect.Fields...)
	return func(resp *httpexpect.Response) {
		resp.Status(expect.Status)
		if expect.EmptyBody {
			resp.Body().IsEmpty()
		}
		if len(fields) == 0 {
			return
		}
		root := resp.JSON()
		for _, field := range fields {
			checkField(root, field)
		}
	}
}

func checkField(root *httpexpect.Value, field config.FieldExpectation) {
	if field.Absent {
		parent, key := splitFieldPath(field.Path)
		holder := root
		if parent != "" {
			holder = root.Path(jsonPath(parent))
		}
		holder.Object().NotContainsKey(key)
		return
	}
	value := root.Path(jsonPath(field.Path))
	if field.NotNull {
		value.NotNull()
	}
	if field.Equals != nil {
		value.IsEqual(field.Equals)
	}
	if field.NotEmpty {
		switch value.Raw().(type) {
		case string:
			value.String().NotEmpty()
		case []any:
			value.Array().NotEmpty()
		case map[string]any:
			value.Object().NotEmpty()
		default:
			value.NotNull()
		}
	}
	if field.MinItems > 0 {
		value.Array().Length().Ge(field.MinItems)
	}
}

// jsonPath turns data[0].id into $.data[0].id.
func jsonPath(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "$") {
		return path
	}
	return "$." + strings.TrimPrefix(path, ".")
}

func splitFieldPath(path string) (string, string) {
	path = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(path), "$"), ".")
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
