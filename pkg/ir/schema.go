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
package ir

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// identifierPattern admits lowercase alphanumerics with single "-" or
// "_" separators: no leading/trailing "-", no "--".
const identifierPattern = `^[a-z0-9_]+(-[a-z0-9_]+)*$`

const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["ir_version", "nodes"],
  "properties": {
    "ir_version": {"type": "string"},
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "pattern": "` + identifierPattern + `"},
          "type": {"type": "string", "minLength": 1},
          "params": {"type": "object"},
          "purpose": {"type": "string"},
          "batch": {
            "type": "object",
            "required": ["items"],
            "properties": {
              "items": {},
              "as": {},
              "parallel": {},
              "max_concurrent": {},
              "max_retries": {},
              "retry_wait": {},
              "error_handling": {}
            },
            "additionalProperties": false
          }
        },
        "additionalProperties": false
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to"],
        "properties": {
          "from": {"type": "string"},
          "to": {"type": "string"},
          "action": {"type": "string", "minLength": 1}
        },
        "additionalProperties": false
      }
    },
    "inputs": {
      "type": "object",
      "propertyNames": {"pattern": "` + identifierPattern + `"},
      "additionalProperties": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string"},
          "required": {"type": "boolean"},
          "default": {},
          "description": {"type": "string"},
          "stdin": {"type": "boolean"}
        },
        "additionalProperties": false
      }
    },
    "outputs": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["source"],
        "properties": {
          "source": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "type": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var schema = gojsonschema.NewStringLoader(documentSchema)

// validateSchema checks a generic document value against the IR schema
// and returns human-readable error strings with field locations.
func validateSchema(v any) []string {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(v))
	if err != nil {
		return []string{fmt.Sprintf("schema validation failed: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return errs
}
