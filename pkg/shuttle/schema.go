// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package shuttle

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// NormalizeSchema returns a copy of schema that strict function-calling APIs
// accept: object schemas always carry a properties map, nested schemas are
// normalized recursively, and a missing type is inferred from the structure.
// The input is not modified; tool schemas are shared between requests.
func NormalizeSchema(schema *JSONSchema) *JSONSchema {
	if schema == nil {
		return nil
	}

	out := *schema
	out.Required = append([]string(nil), schema.Required...)
	out.Enum = append([]interface{}(nil), schema.Enum...)

	if out.Type == "" {
		switch {
		case schema.Properties != nil:
			out.Type = "object"
		case schema.Items != nil:
			out.Type = "array"
		case len(schema.Enum) > 0:
			out.Type = "string"
		}
	}

	if out.Type == "object" {
		out.Properties = make(map[string]*JSONSchema, len(schema.Properties))
		for key, prop := range schema.Properties {
			if prop == nil {
				continue
			}
			out.Properties[key] = NormalizeSchema(prop)
		}
	}
	if schema.Items != nil {
		out.Items = NormalizeSchema(schema.Items)
	}
	return &out
}

// ValidateParams checks tool arguments against the tool's input schema.
// A nil schema accepts anything.
func ValidateParams(schema *JSONSchema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schemaDocument(NormalizeSchema(schema))),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// schemaDocument renders the subset of JSON Schema the validator needs,
// leaving out empty types.
func schemaDocument(s *JSONSchema) map[string]interface{} {
	doc := make(map[string]interface{})
	if s.Type != "" {
		doc["type"] = s.Type
	}
	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
		for key, prop := range s.Properties {
			props[key] = schemaDocument(prop)
		}
		doc["properties"] = props
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	if s.Items != nil {
		doc["items"] = schemaDocument(s.Items)
	}
	if len(s.Enum) > 0 {
		doc["enum"] = s.Enum
	}
	return doc
}
