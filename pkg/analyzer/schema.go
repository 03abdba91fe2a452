package analyzer

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchemaJSON bounds the analyzer's JSON-schema validation to its own
// view_types/config input (spec Non-goal (c): "JSON schema validation
// beyond what the analyzer requires" — i.e. not every trace record, just
// this). Modeled on the teacher's pkg/archive/validate.go, which compiles
// a bundled schema and validates a decoded document against it.
const configSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "view_types": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "time_granularity": {"type": "number", "exclusiveMinimum": 0},
    "extra_columns": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  },
  "required": ["view_types"]
}`

var configSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("analyzer-config.json", strings.NewReader(configSchemaJSON)); err != nil {
		panic("analyzer: invalid bundled config schema: " + err.Error())
	}
	s, err := compiler.Compile("analyzer-config.json")
	if err != nil {
		panic("analyzer: bundled config schema failed to compile: " + err.Error())
	}
	configSchema = s
}

// ValidateConfig validates a raw JSON analyze_trace configuration document
// (view_types, time_granularity, extra_columns) against the bundled
// schema, before any trace file is touched.
func ValidateConfig(raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return newAnalyzerError("decode config", err)
	}
	if err := configSchema.Validate(doc); err != nil {
		return newAnalyzerError("config failed schema validation", err)
	}
	return nil
}
