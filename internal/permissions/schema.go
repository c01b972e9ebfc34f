package permissions

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/invopop/jsonschema"
	"github.com/pelletier/go-toml/v2"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const manifestSchemaURL = "manifest.schema.json"

var (
	schemaOnce     sync.Once
	manifestSchema *validator.Schema
	schemaJSON     []byte
	schemaErr      error
)

// ManifestSchema returns the JSON Schema manifests are checked against
func ManifestSchema() ([]byte, error) {
	compileSchema()
	return schemaJSON, schemaErr
}

func compileSchema() {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			Anonymous:      true,
			DoNotReference: true,
			ExpandedStruct: true,
		}
		s := r.Reflect(&Manifest{})
		s.Title = "guesthost permission manifest"

		schemaJSON, schemaErr = s.MarshalJSON()
		if schemaErr != nil {
			return
		}

		compiler := validator.NewCompiler()
		if schemaErr = compiler.AddResource(manifestSchemaURL, strings.NewReader(string(schemaJSON))); schemaErr != nil {
			return
		}
		manifestSchema, schemaErr = compiler.Compile(manifestSchemaURL)
	})
}

// validateDocument rejects documents with unknown keys or wrongly typed values
func validateDocument(data []byte, format Format) error {
	compileSchema()
	if schemaErr != nil {
		return fmt.Errorf("manifest schema: %w", schemaErr)
	}

	var raw map[string]interface{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse yaml manifest: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse toml manifest: %w", err)
		}
	default:
		return fmt.Errorf("unknown manifest format %q", format)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	// round trip through JSON so numbers and maps have the shapes the
	// validator expects
	normalized, err := sonic.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to normalize manifest: %w", err)
	}
	var doc interface{}
	if err := sonic.Unmarshal(normalized, &doc); err != nil {
		return fmt.Errorf("failed to normalize manifest: %w", err)
	}

	if err := manifestSchema.Validate(doc); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}
