package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemaOnce sync.Once
	schema     *jsv.Schema
	schemaErr  error
)

// generateSchema reflects the Document type into a JSON Schema so loads can
// reject documents whose shape drifted (hand edits, version skew) instead of
// silently decoding them into zero values.
func generateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		FieldNameTag:   "json",
	}
	s := r.Reflect(&Document{})
	s.Title = "agentherd session registry"
	s.Version = "http://json-schema.org/draft-07/schema#"
	return json.Marshal(s)
}

// compiledSchema compiles the reflected schema once per process.
func compiledSchema() (*jsv.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := generateSchema()
		if err != nil {
			schemaErr = fmt.Errorf("failed to generate registry schema: %w", err)
			return
		}
		compiler := jsv.NewCompiler()
		if err := compiler.AddResource("registry.json", bytes.NewReader(raw)); err != nil {
			schemaErr = fmt.Errorf("failed to add registry schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("registry.json")
	})
	return schema, schemaErr
}

// validateShape checks raw document bytes against the registry schema.
func validateShape(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
