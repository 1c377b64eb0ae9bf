package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ScenarioSchema describes the scenario file format so editors can validate
// definitions before the loader sees them.
func ScenarioSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		FieldNameTag:              "json",
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&ScenarioDocument{})
	schema.Title = "usercheck scenarios"
	schema.Description = "Declarative scenarios executed against the users API."
	return schema
}

// MarshalScenarioSchema renders ScenarioSchema as indented JSON.
func MarshalScenarioSchema() ([]byte, error) {
	data, err := json.MarshalIndent(ScenarioSchema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("config: marshal scenario schema: %w", err)
	}
	return data, nil
}
