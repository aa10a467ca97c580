package nlu

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed functions.yaml
var functionsYAML []byte

// Function is one callable the model may choose.
type Function struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Parameters  map[string]any `yaml:"parameters" json:"parameters"`
}

// Catalog is the fixed function set with a compiled schema per function.
type Catalog struct {
	functions []Function
	schemas   map[string]*jsonschema.Schema
	required  map[string][]string
}

// ArgumentError reports function arguments that do not match the catalog.
type ArgumentError struct {
	Function string
	Missing  []string
	Err      error
}

func (e *ArgumentError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: missing %s", e.Function, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %v", e.Function, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

var ErrUnknownFunction = errors.New("unknown function")

// LoadCatalog parses the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(functionsYAML)
}

// ParseCatalog parses a YAML catalog and compiles each parameters schema.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Functions []Function `yaml:"functions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse function catalog: %w", err)
	}
	if len(doc.Functions) == 0 {
		return nil, fmt.Errorf("function catalog is empty")
	}

	c := &Catalog{
		functions: doc.Functions,
		schemas:   make(map[string]*jsonschema.Schema, len(doc.Functions)),
		required:  make(map[string][]string, len(doc.Functions)),
	}
	compiler := jsonschema.NewCompiler()
	for _, fn := range doc.Functions {
		if fn.Name == "" {
			return nil, fmt.Errorf("function catalog: entry without name")
		}
		raw, err := json.Marshal(fn.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode %s schema: %w", fn.Name, err)
		}
		url := "mem://functions/" + fn.Name + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", fn.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", fn.Name, err)
		}
		c.schemas[fn.Name] = schema
		c.required[fn.Name] = requiredFields(fn.Parameters)
	}
	return c, nil
}

// Functions returns the catalog in declaration order.
func (c *Catalog) Functions() []Function {
	out := make([]Function, len(c.functions))
	copy(out, c.functions)
	return out
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.schemas[name]
	return ok
}

// Validate checks args against the schema of name. Missing required fields
// are listed on the returned *ArgumentError.
func (c *Catalog) Validate(name string, args map[string]any) error {
	schema, ok := c.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	var missing []string
	for _, field := range c.required[name] {
		if v, ok := args[field]; !ok || v == nil || v == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ArgumentError{Function: name, Missing: missing}
	}
	if err := schema.Validate(toSchemaValue(args)); err != nil {
		return &ArgumentError{Function: name, Err: err}
	}
	return nil
}

func requiredFields(params map[string]any) []string {
	list, _ := params["required"].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// toSchemaValue converts a decoded argument map into the value shapes the
// validator accepts (map[string]any, []any, json.Number, string, bool).
func toSchemaValue(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return args
	}
	return v
}
