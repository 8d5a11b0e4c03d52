package taskboard

import (
	"bytes"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schemas accept every layout the migrator knows how to read; structural
// garbage is CorruptDocument, legacy shapes are not.
const indexSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "columns"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "nextTaskSeq": {"type": "integer", "minimum": 0},
    "columns": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "position": {"type": "integer"},
          "taskIds": {"type": "array", "items": {"type": "string"}},
          "tasks": {"type": "array", "items": {"type": "object"}}
        }
      }
    }
  }
}`

const taskSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "column"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "column": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "body": {"type": "string"},
    "status": {"type": "string"},
    "priority": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "artifacts": {"type": "array", "items": {"type": "string"}},
    "checklist": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "text": {"type": "string"},
          "done": {"type": "boolean"}
        }
      }
    },
    "updatedAt": {"type": "string"}
  }
}`

var (
	schemaOnce    sync.Once
	schemaInitErr error
	indexSchema   *jsonschema.Schema
	taskSchema    *jsonschema.Schema
)

func compiledSchemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for name, raw := range map[string]string{
			"taskboard-index.schema.json": indexSchemaJSON,
			"taskboard-task.schema.json":  taskSchemaJSON,
		} {
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(raw)))
			if err != nil {
				schemaInitErr = err
				return
			}
			if err := compiler.AddResource(name, doc); err != nil {
				schemaInitErr = err
				return
			}
		}
		var err error
		if indexSchema, err = compiler.Compile("taskboard-index.schema.json"); err != nil {
			schemaInitErr = err
			return
		}
		if taskSchema, err = compiler.Compile("taskboard-task.schema.json"); err != nil {
			schemaInitErr = err
			return
		}
	})
	return indexSchema, taskSchema, schemaInitErr
}

func validateIndexDocument(path string, data []byte) error {
	schema, _, err := compiledSchemas()
	if err != nil {
		return err
	}
	return validateDocument(schema, path, data)
}

func validateTaskDocument(path string, data []byte) error {
	_, schema, err := compiledSchemas()
	if err != nil {
		return err
	}
	return validateDocument(schema, path, data)
}

func validateDocument(schema *jsonschema.Schema, path string, data []byte) error {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &CorruptDocumentError{Path: path, Reason: err.Error()}
	}
	if err := schema.Validate(instance); err != nil {
		return &CorruptDocumentError{Path: path, Reason: err.Error()}
	}
	return nil
}
