package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned when a journey document does not match JourneySchema.
var ErrInvalidDocument = errors.New("invalid journey document")

var nullableString = map[string]any{"type": []string{"string", "null"}}

// JourneySchema is the JSON Schema of a journey definition document.
// It checks shape only; graph consistency is validated separately.
var JourneySchema = map[string]any{
	"$schema":  "http://json-schema.org/draft-07/schema#",
	"title":    "Journey",
	"type":     "object",
	"required": []string{"name", "start_node_id", "nodes"},
	"properties": map[string]any{
		"id":            map[string]any{"type": "string"},
		"name":          map[string]any{"type": "string", "minLength": 1},
		"start_node_id": map[string]any{"type": "string", "minLength": 1},
		"nodes": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"id", "type"},
				"properties": map[string]any{
					"id":            map[string]any{"type": "string", "minLength": 1},
					"type":          map[string]any{"enum": []string{string(NodeTypeMessage), string(NodeTypeDelay), string(NodeTypeConditional)}},
					"message":       map[string]any{"type": "string"},
					"delay_seconds": map[string]any{"type": "number", "minimum": 0},
					"next_node_id":  nullableString,
					"true_node_id":  nullableString,
					"false_node_id": nullableString,
					"condition": map[string]any{
						"type":     "object",
						"required": []string{"field", "operator"},
						"properties": map[string]any{
							"field":    map[string]any{"type": "string"},
							"operator": map[string]any{"type": "string"},
						},
					},
				},
			},
		},
	},
}

// ValidateJourneyDocument checks a generic journey document against JourneySchema.
func ValidateJourneyDocument(doc any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(JourneySchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
	}

	return nil
}

// DecodeJourneyDocument validates a generic journey document and builds the journey from it.
func DecodeJourneyDocument(doc map[string]any) (*Journey, error) {
	if err := ValidateJourneyDocument(doc); err != nil {
		return nil, err
	}

	rawNodes, _ := doc["nodes"].([]any)
	nodeDocs := make([]map[string]any, 0, len(rawNodes))

	for i, raw := range rawNodes {
		nodeDoc, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: node at index %d is not an object", ErrInvalidDocument, i)
		}

		nodeDocs = append(nodeDocs, nodeDoc)
	}

	nodes, err := DecodeNodes(nodeDocs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	journey := &Journey{Nodes: nodes}
	journey.ID, _ = doc["id"].(string)
	journey.Name, _ = doc["name"].(string)
	journey.StartNodeID, _ = doc["start_node_id"].(string)

	return journey, nil
}

// ParseJourneyDocument parses a JSON or YAML journey definition.
func ParseJourneyDocument(data []byte) (*Journey, error) {
	var doc map[string]any

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}

	return DecodeJourneyDocument(doc)
}
