package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// documentSchemaJSON is the fixed schema a mapping document must satisfy
// before the tagged-union tree is built. Structural shape only — the
// one-of-three-kinds and array-or-object normalization happens in the
// UnmarshalJSON methods, since jsonschema-go validates against the raw
// document, not the Go types.
const documentSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "connection": {
      "type": "object",
      "properties": {
        "keep_alive": {"type": "integer", "minimum": 0},
        "client_id": {"type": "string"},
        "clean_session": {"type": "boolean"},
        "will_topic": {"type": "string"},
        "will_message": {"type": "string"},
        "will_qos": {"type": "integer", "minimum": 0, "maximum": 2},
        "will_retain": {"type": "boolean"},
        "username": {"type": "string"},
        "password": {"type": "string"}
      }
    },
    "mappings": {
      "oneOf": [
        {"$ref": "#/$defs/node"},
        {"type": "array", "items": {"$ref": "#/$defs/node"}}
      ]
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "subscription": {"$ref": "#/$defs/subscription"},
        "topic_level": {
          "oneOf": [
            {"$ref": "#/$defs/node"},
            {"type": "array", "items": {"$ref": "#/$defs/node"}}
          ]
        }
      }
    },
    "subscription": {
      "type": "object",
      "required": ["qos"],
      "properties": {
        "qos": {"type": "integer", "minimum": 0, "maximum": 2},
        "static": {"$ref": "#/$defs/staticOrArray"},
        "value": {"$ref": "#/$defs/templateOrArray"},
        "json": {"$ref": "#/$defs/templateOrArray"}
      }
    },
    "staticEntry": {
      "type": "object",
      "required": ["mapped_topic", "message_mapping"],
      "properties": {
        "mapped_topic": {"type": "string"},
        "retain_message": {"type": "boolean"},
        "qos_override": {"type": "integer", "minimum": 0, "maximum": 2},
        "message_mapping": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["message", "mapped_message"],
            "properties": {
              "message": {"type": "string"},
              "mapped_message": {"type": "string"}
            }
          }
        }
      }
    },
    "staticOrArray": {
      "oneOf": [
        {"$ref": "#/$defs/staticEntry"},
        {"type": "array", "items": {"$ref": "#/$defs/staticEntry"}}
      ]
    },
    "templateEntry": {
      "type": "object",
      "required": ["mapped_topic", "mapping_template"],
      "properties": {
        "mapped_topic": {"type": "string"},
        "retain_message": {"type": "boolean"},
        "qos_override": {"type": "integer", "minimum": 0, "maximum": 2},
        "mapping_template": {"type": "string"}
      }
    },
    "templateOrArray": {
      "oneOf": [
        {"$ref": "#/$defs/templateEntry"},
        {"type": "array", "items": {"$ref": "#/$defs/templateEntry"}}
      ]
    }
  }
}`

var resolvedDocumentSchema *jsonschema.Resolved

func init() {
	schema := new(jsonschema.Schema)
	if err := json.Unmarshal([]byte(documentSchemaJSON), schema); err != nil {
		panic(fmt.Sprintf("mapping: invalid embedded schema: %v", err))
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("mapping: schema does not resolve: %v", err))
	}
	resolvedDocumentSchema = resolved
}

// Validate checks raw against the fixed mapping-document schema.
func Validate(raw []byte) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return resolvedDocumentSchema.Validate(instance)
}
