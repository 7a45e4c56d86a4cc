package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// durationPattern matches the strings time.ParseDuration accepts.
const durationPattern = `^-?([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var (
	schemaOnce     sync.Once
	schemaJSON     []byte
	schemaCompiled *validator.Schema
	schemaErr      error
)

func buildSchema() {
	r := &jsonschema.Reflector{
		Anonymous:                  true,
		FieldNameTag:               "yaml",
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})
	schema.Title = "pinboard configuration"
	schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	if schemaErr != nil {
		return
	}
	schemaCompiled, schemaErr = validator.CompileString("pinboard.schema.json", string(schemaJSON))
}

// JSONSchema returns the JSON Schema of the configuration file, keyed by
// YAML field names.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(buildSchema)
	return schemaJSON, schemaErr
}

// ValidateSchema checks a raw configuration map, as returned by LoadRaw,
// against JSONSchema. Null values are ignored so unset environment
// references fall through to the defaults.
func ValidateSchema(raw map[string]any) error {
	schemaOnce.Do(buildSchema)
	if schemaErr != nil {
		return fmt.Errorf("compile config schema: %w", schemaErr)
	}

	payload, err := json.Marshal(dropNulls(raw))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := schemaCompiled.Validate(decoded); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

func dropNulls(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch typed := v.(type) {
		case nil:
			continue
		case map[string]any:
			out[k] = dropNulls(typed)
		default:
			out[k] = v
		}
	}
	return out
}
