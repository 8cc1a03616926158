package web

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// arrivalSchemaJSON declares the shape of the visitor-arrival request body.
const arrivalSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["title", "body", "communityId", "houseNumber"],
	"properties": {
		"title":       {"type": "string", "minLength": 1},
		"body":        {"type": "string"},
		"communityId": {"type": "integer", "minimum": 1},
		"houseNumber": {"type": "string", "minLength": 1},
		"photo":       {"type": "string"}
	},
	"additionalProperties": false
}`

// compileArrivalSchema compiles the arrival request schema.
func compileArrivalSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(arrivalSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("arrival.json", doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}

	schema, err := compiler.Compile("arrival.json")
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	return schema, nil
}

// validateArrival checks raw request bytes against the arrival schema.
func validateArrival(schema *jsonschema.Schema, raw []byte) error {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	if err := schema.Validate(value); err != nil {
		return err
	}
	return nil
}
