package document

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed assembly.schema.json
var schemaSource []byte

const schemaURL = "https://iltrim.dev/schema/assembly.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaSource))
		if err != nil {
			schemaErr = fmt.Errorf("embedded schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("embedded schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// SchemaError lists every location in a document that violates the schema.
type SchemaError struct {
	Locations []string
	Detail    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation at %s", strings.Join(e.Locations, ", "))
}

// Decode validates content against the assembly schema and decodes it. YAML and
// JSON are both accepted.
func Decode(content []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if raw == nil {
		return nil, errors.New("parse: empty document")
	}
	// The validator wants JSON values; a YAML tree is normalized through JSON.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(normalized))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, &SchemaError{Locations: leafLocations(ve), Detail: ve.Error()}
		}
		return nil, fmt.Errorf("validate: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &doc, nil
}

func leafLocations(ve *jsonschema.ValidationError) []string {
	seen := make(map[string]bool)
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			seen["/"+strings.Join(e.InstanceLocation, "/")] = true
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	out := make([]string, 0, len(seen))
	for loc := range seen {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}
