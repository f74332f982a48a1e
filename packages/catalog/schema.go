package catalog

// schema is the JSON Schema every catalog document must satisfy.
const schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "environments": {
      "type": "array",
      "items": {"$ref": "#/definitions/environment"}
    },
    "modules": {
      "type": "array",
      "items": {"$ref": "#/definitions/module"}
    }
  },
  "definitions": {
    "stringMap": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "environment": {
      "type": "object",
      "additionalProperties": false,
      "required": ["name", "base_url"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "base_url": {"type": "string", "minLength": 1},
        "headers": {"$ref": "#/definitions/stringMap"}
      }
    },
    "module": {
      "type": "object",
      "additionalProperties": false,
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "variables": {
          "type": "array",
          "items": {"$ref": "#/definitions/variable"}
        },
        "cases": {
          "type": "array",
          "items": {"$ref": "#/definitions/case"}
        }
      }
    },
    "variable": {
      "type": "object",
      "additionalProperties": false,
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "value": {"type": "string"},
        "extractor": {
          "type": "object",
          "additionalProperties": false,
          "required": ["source", "expression"],
          "properties": {
            "source": {"enum": ["body", "headers", "response_body", "response_headers"]},
            "expression": {"type": "string", "minLength": 1}
          }
        }
      }
    },
    "case": {
      "type": "object",
      "additionalProperties": false,
      "required": ["method", "path"],
      "properties": {
        "name": {"type": "string"},
        "description": {"type": "string"},
        "method": {"type": "string", "pattern": "^(?i)(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)$"},
        "path": {"type": "string"},
        "headers": {"$ref": "#/definitions/stringMap"},
        "params": {"type": "object"},
        "body": {},
        "assertions": {
          "type": "array",
          "items": {"$ref": "#/definitions/assertion"}
        }
      }
    },
    "assertion": {
      "type": "object",
      "additionalProperties": false,
      "required": ["type", "expected"],
      "properties": {
        "type": {"enum": ["status_code", "response_body", "response_headers", "response_time"]},
        "operator": {"enum": ["equals", "not_equals", "contains", "not_contains", "greater_than", "less_than", "greater_than_or_equal", "less_than_or_equal"]},
        "expected": {},
        "expression": {"type": "string"},
        "header_name": {"type": "string"}
      }
    }
  }
}`
