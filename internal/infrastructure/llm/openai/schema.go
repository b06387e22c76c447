package openai

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects a strict structured-output schema from a response
// struct. Panics are acceptable: the schemas are package-level constants in
// effect, so a bad one fails at init.
func generateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)

	raw, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	delete(out, "$schema")

	// Strict mode requires every property to be listed as required.
	if props, ok := out["properties"].(map[string]interface{}); ok {
		required := make([]interface{}, 0, len(props))
		for name := range props {
			required = append(required, name)
		}
		out["required"] = required
	}
	return out
}
