// Package extensions holds the ownership table that tells which schema
// resolves each field of the composite schema, and derives it from the SDL of
// the individual schemas.
package extensions

import (
	"fmt"
	"sort"

	language "github.com/hanpama/compositegraph/internal/language"
)

// Table maps type name -> field name -> owning schema name.
type Table map[string]map[string]string

// Lookup returns the schema owning typeName.field.
func (t Table) Lookup(typeName, field string) (string, bool) {
	fields, ok := t[typeName]
	if !ok {
		return "", false
	}
	schema, ok := fields[field]
	return schema, ok && schema != ""
}

// Schemas returns every schema name mentioned by the table, sorted.
func (t Table) Schemas() []string {
	seen := map[string]struct{}{}
	for _, fields := range t {
		for _, s := range fields {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (t Table) set(typeName, field, schema string) {
	fields := t[typeName]
	if fields == nil {
		fields = map[string]string{}
		t[typeName] = fields
	}
	fields[field] = schema
}

// Config is the ownership configuration consumed by the splitter.
type Config struct {
	QueryType    string `yaml:"queryType" json:"queryType"`
	MutationType string `yaml:"mutationType,omitempty" json:"mutationType,omitempty"`
	Extensions   Table  `yaml:"extensions" json:"extensions"`
}

// RootSchema returns the schema owning a field of the query type.
func (c *Config) RootSchema(field string) (string, bool) {
	return c.Extensions.Lookup(c.QueryType, field)
}

// Check verifies the table against the composite schema. Outside the root
// types, an object is re-entered in another schema through node(id:), so every
// extended type must exist and select an id field.
func (c *Config) Check(schema *language.Schema) error {
	names := make([]string, 0, len(c.Extensions))
	for name := range c.Extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := schema.Types[name]
		if def == nil {
			return fmt.Errorf("%w: type %s is not in the composite schema", ErrInvalidExtension, name)
		}
		for field := range c.Extensions[name] {
			if def.Fields.ForName(field) == nil {
				return fmt.Errorf("%w: type %s has no field %s", ErrInvalidExtension, name, field)
			}
		}
		if name == c.QueryType || name == c.MutationType {
			continue
		}
		if def.Fields.ForName("id") == nil {
			return fmt.Errorf("%w: type %s is extended but has no id field", ErrInvalidExtension, name)
		}
	}
	return nil
}

// MutationSchema returns the schema owning a field of the mutation type.
func (c *Config) MutationSchema(field string) (string, bool) {
	if c.MutationType == "" {
		return "", false
	}
	return c.Extensions.Lookup(c.MutationType, field)
}
