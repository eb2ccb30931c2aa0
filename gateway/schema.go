package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// statusSchemaMap describes the only status payload shape we accept from the
// gateway. Anything else is quarantined as ErrMalformedPayload instead of
// being propagated as loosely typed data.
func statusSchemaMap() map[string]any {
	tsMessage := map[string]any{
		"type":     "object",
		"required": []string{"message"},
		"properties": map[string]any{
			"ts":      map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
		},
	}
	step := map[string]any{
		"type":     "object",
		"required": []string{"name", "target"},
		"properties": map[string]any{
			"name":   map[string]any{"type": "string"},
			"label":  map[string]any{"type": "string"},
			"target": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		},
	}
	return map[string]any{
		"type":     "object",
		"required": []string{"status"},
		"properties": map[string]any{
			"status": map[string]any{
				"type": "string",
				"enum": []string{"uploaded", "queued", "processing", "completed", "error", "failed"},
			},
			"progress":    map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
			"message":     map[string]any{"type": "string"},
			"output_file": map[string]any{"type": "string"},
			"error":       map[string]any{"type": "string"},
			"logs":        map[string]any{"type": "array", "items": tsMessage},
			"steps":       map[string]any{"type": "array", "items": step},
			"file_info":   map[string]any{"type": "object"},
			"expires_at":  map[string]any{"type": "string"},
		},
	}
}

var statusSchema = mustCompile(statusSchemaMap())

func mustCompile(schemaMap map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("marshal status schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("status.json", bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add status schema: %v", err))
	}
	schema, err := compiler.Compile("status.json")
	if err != nil {
		panic(fmt.Sprintf("compile status schema: %v", err))
	}
	return schema
}

// validateStatusPayload checks a raw status body against the schema before
// it is unmarshaled into a typed struct.
func validateStatusPayload(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := statusSchema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
