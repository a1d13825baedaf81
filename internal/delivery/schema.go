package delivery

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a named JSON schema a response payload must satisfy before it is
// decoded.
type Schema struct {
	Name       string
	Definition map[string]any
}

// PageSchema describes the getSessionProblems payload.
var PageSchema = &Schema{
	Name: "session-page",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"problems": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"sequenceNumber":  map[string]any{"type": "integer", "minimum": 1},
						"question":        map[string]any{"type": "string"},
						"subcategory":     map[string]any{"type": "string"},
						"difficulty":      map[string]any{"type": "string"},
						"difficultyLevel": map[string]any{"type": "integer"},
						"answer":          map[string]any{"type": []any{"string", "null"}},
					},
					"required": []any{"sequenceNumber", "question", "subcategory"},
				},
			},
			"totalPages":      map[string]any{"type": "integer", "minimum": 1},
			"isLastPage":      map[string]any{"type": "boolean"},
			"isPageSubmitted": map[string]any{"type": "boolean"},
			"sessionInfo":     map[string]any{"type": "object"},
		},
		"required": []any{"problems", "totalPages", "isLastPage", "isPageSubmitted"},
	},
}

// DetailsSchema describes the getSessionDetails payload.
var DetailsSchema = &Schema{
	Name: "session-details",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"problems": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"sequenceNumber": map[string]any{"type": "integer"},
						"isCorrect":      map[string]any{"type": "boolean"},
					},
					"required": []any{"sequenceNumber", "isCorrect"},
				},
			},
			"score": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"correct": map[string]any{"type": "integer", "minimum": 0},
					"total":   map[string]any{"type": "integer", "minimum": 0},
				},
				"required": []any{"correct", "total"},
			},
			"celebration": map[string]any{"type": "object"},
		},
		"required": []any{"sessionId", "problems", "score"},
	},
}

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// validatePayload validates raw JSON against schema. A nil schema accepts
// everything.
func validatePayload(op string, schema *Schema, raw []byte) error {
	if schema == nil {
		return nil
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &InvalidResponseError{Op: op, Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	compiled, err := compiledSchema(schema)
	if err != nil {
		return &InvalidResponseError{Op: op, Err: fmt.Errorf("compile schema %q: %w", schema.Name, err)}
	}

	if err := compiled.Validate(parsed); err != nil {
		return &InvalidResponseError{Op: op, Err: fmt.Errorf("schema validation failed: %w", err)}
	}
	return nil
}

// compiledSchema returns a cached compiled schema or compiles and caches it.
func compiledSchema(schema *Schema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants a plain decoded JSON value, not Go maps with typed
	// slices, so round-trip the definition through encoding/json.
	defBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(schemaURL, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}

	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(schema.Name, compiled)
	return compiled, nil
}
