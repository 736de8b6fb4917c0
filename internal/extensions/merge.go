package extensions

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	language "github.com/hanpama/compositegraph/internal/language"
)

var (
	// ErrInvalidExtension reports schemas that cannot be combined: the same
	// field claimed by two schemas, or one type name with different shapes.
	ErrInvalidExtension = errors.New("invalid extension")
	// ErrInvalidOptions reports missing or malformed merge options.
	ErrInvalidOptions = errors.New("invalid options")
)

const nodeInterface = "Node"

// Source is the SDL of one schema taking part in the composite schema.
type Source struct {
	Name string
	SDL  string
}

// Options names the root types of the composite schema.
type Options struct {
	QueryType    string
	MutationType string
}

// Composite is the result of merging schemas: the client-facing schema and
// the ownership configuration that drives query splitting.
type Composite struct {
	Config   Config
	Schema   *language.Schema
	Document *language.SchemaDocument
	SDL      string
}

type compositeType struct {
	def     *language.Definition
	schemas []string
}

type merger struct {
	opts  Options
	types map[string]*compositeType
	order []string
	table Table
}

// Merge combines the given schemas. Root query and mutation types are renamed
// to the names in opts and their fields are owned by the schema defining
// them (the generic `node` field is shared). Types implementing Node are
// extended field by field, `id` being shared; every other type must be
// defined identically wherever it appears.
func Merge(sources []Source, opts Options) (*Composite, error) {
	if opts.QueryType == "" {
		return nil, fmt.Errorf("%w: missing required option(s): queryType", ErrInvalidOptions)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no schemas to merge", ErrInvalidOptions)
	}
	m := &merger{opts: opts, types: map[string]*compositeType{}, table: Table{}}
	for _, src := range sources {
		if src.Name == "" {
			return nil, fmt.Errorf("%w: schema without a name", ErrInvalidOptions)
		}
		doc, err := language.ParseSchema(src.Name, src.SDL)
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", src.Name, err)
		}
		if err := m.mergeDocument(src.Name, doc); err != nil {
			return nil, err
		}
	}
	return m.build()
}

func (m *merger) mergeDocument(schemaName string, doc *language.SchemaDocument) error {
	queryType, mutationType := rootTypeNames(doc)
	defs := applyExtensions(doc)
	for _, def := range defs {
		var err error
		switch {
		case def.Name == queryType:
			err = m.mergeRoot(m.opts.QueryType, schemaName, def, "node")
		case def.Name == mutationType:
			if m.opts.MutationType == "" {
				continue
			}
			err = m.mergeRoot(m.opts.MutationType, schemaName, def, "")
		case def.Name == nodeInterface && def.Kind == language.Interface:
			err = m.mergeNodeInterface(schemaName, def)
		case implementsNode(def):
			err = m.mergeNodeType(schemaName, def)
		default:
			err = m.mergeShared(schemaName, def)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *merger) mergeRoot(name, schemaName string, def *language.Definition, shared string) error {
	ct := m.types[name]
	if ct == nil {
		ct = m.add(name, &language.Definition{Kind: def.Kind, Name: name, Description: def.Description})
	}
	if ct.def.Kind != def.Kind {
		return m.kindMismatch(ct, schemaName, def)
	}
	for _, f := range def.Fields {
		if shared != "" && f.Name == shared {
			if ct.def.Fields.ForName(f.Name) == nil {
				ct.def.Fields = append(ct.def.Fields, f)
			}
			continue
		}
		if err := m.mergeField(ct, schemaName, f); err != nil {
			return err
		}
	}
	ct.schemas = appendUnique(ct.schemas, schemaName)
	return nil
}

func (m *merger) mergeNodeType(schemaName string, def *language.Definition) error {
	ct := m.types[def.Name]
	if ct == nil {
		cp := *def
		cp.Fields = nil
		cp.Interfaces = append([]string(nil), def.Interfaces...)
		if id := def.Fields.ForName("id"); id != nil {
			cp.Fields = language.FieldList{id}
		}
		ct = m.add(def.Name, &cp)
	} else if ct.def.Kind != def.Kind {
		return m.kindMismatch(ct, schemaName, def)
	}
	for _, iface := range def.Interfaces {
		ct.def.Interfaces = appendUnique(ct.def.Interfaces, iface)
	}
	for _, f := range def.Fields {
		if f.Name == "id" {
			if ct.def.Fields.ForName("id") == nil {
				ct.def.Fields = append(ct.def.Fields, f)
			}
			continue
		}
		if err := m.mergeField(ct, schemaName, f); err != nil {
			return err
		}
	}
	ct.schemas = appendUnique(ct.schemas, schemaName)
	return nil
}

// mergeNodeInterface unions the fields every schema declares on Node.
func (m *merger) mergeNodeInterface(schemaName string, def *language.Definition) error {
	ct := m.types[def.Name]
	if ct == nil {
		cp := *def
		cp.Fields = append(language.FieldList(nil), def.Fields...)
		m.add(def.Name, &cp).schemas = []string{schemaName}
		return nil
	}
	if ct.def.Kind != def.Kind {
		return m.kindMismatch(ct, schemaName, def)
	}
	for _, f := range def.Fields {
		if ct.def.Fields.ForName(f.Name) == nil {
			ct.def.Fields = append(ct.def.Fields, f)
		}
	}
	ct.schemas = appendUnique(ct.schemas, schemaName)
	return nil
}

func (m *merger) mergeShared(schemaName string, def *language.Definition) error {
	ct := m.types[def.Name]
	if ct == nil {
		cp := *def
		m.add(def.Name, &cp).schemas = []string{schemaName}
		return nil
	}
	if ct.def.Kind != def.Kind {
		return m.kindMismatch(ct, schemaName, def)
	}
	if signature(ct.def) != signature(def) {
		return fmt.Errorf("%w: multiple schemas with type %s but different definitions (%s)",
			ErrInvalidExtension, def.Name, strings.Join(append(ct.schemas, schemaName), ", "))
	}
	ct.schemas = appendUnique(ct.schemas, schemaName)
	return nil
}

func (m *merger) mergeField(ct *compositeType, schemaName string, f *language.FieldDefinition) error {
	if owner, ok := m.table.Lookup(ct.def.Name, f.Name); ok {
		return fmt.Errorf("%w: type %s with field %s in multiple schemas -- %s, %s",
			ErrInvalidExtension, ct.def.Name, f.Name, owner, schemaName)
	}
	ct.def.Fields = append(ct.def.Fields, f)
	m.table.set(ct.def.Name, f.Name, schemaName)
	return nil
}

func (m *merger) kindMismatch(ct *compositeType, schemaName string, def *language.Definition) error {
	return fmt.Errorf("%w: type %s with non-matching kinds from schemas %s",
		ErrInvalidExtension, def.Name, strings.Join(append(ct.schemas, schemaName), ", "))
}

func (m *merger) add(name string, def *language.Definition) *compositeType {
	ct := &compositeType{def: def}
	m.types[name] = ct
	m.order = append(m.order, name)
	return ct
}

func (m *merger) build() (*Composite, error) {
	doc := &language.SchemaDocument{}
	for _, name := range m.order {
		doc.Definitions = append(doc.Definitions, m.types[name].def)
	}
	if _, ok := m.types[m.opts.QueryType]; !ok {
		return nil, fmt.Errorf("%w: no schema defines a query type", ErrInvalidOptions)
	}
	schemaDef := &language.SchemaDefinition{
		OperationTypes: []*language.OperationTypeDef{{Operation: language.Query, Type: m.opts.QueryType}},
	}
	if _, ok := m.types[m.opts.MutationType]; ok && m.opts.MutationType != "" {
		schemaDef.OperationTypes = append(schemaDef.OperationTypes,
			&language.OperationTypeDef{Operation: language.Mutation, Type: m.opts.MutationType})
	}
	doc.Schema = append(doc.Schema, schemaDef)

	sdl := language.FormatSchema(doc)
	schema, err := language.LoadSchema(&language.Source{Name: "composite.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("load composite schema: %w", err)
	}
	return &Composite{
		Config: Config{
			QueryType:    m.opts.QueryType,
			MutationType: m.opts.MutationType,
			Extensions:   m.table,
		},
		Schema:   schema,
		Document: doc,
		SDL:      sdl,
	}, nil
}

func rootTypeNames(doc *language.SchemaDocument) (query, mutation string) {
	query, mutation = "Query", "Mutation"
	for _, sd := range doc.Schema {
		for _, ot := range sd.OperationTypes {
			switch ot.Operation {
			case language.Query:
				query = ot.Type
			case language.Mutation:
				mutation = ot.Type
			}
		}
	}
	return query, mutation
}

// applyExtensions folds `extend type` blocks into their definitions.
func applyExtensions(doc *language.SchemaDocument) language.DefinitionList {
	byName := map[string]*language.Definition{}
	out := make(language.DefinitionList, 0, len(doc.Definitions))
	for _, def := range doc.Definitions {
		cp := *def
		byName[def.Name] = &cp
		out = append(out, &cp)
	}
	for _, ext := range doc.Extensions {
		def := byName[ext.Name]
		if def == nil {
			cp := *ext
			byName[ext.Name] = &cp
			out = append(out, &cp)
			continue
		}
		def.Fields = append(append(language.FieldList(nil), def.Fields...), ext.Fields...)
		def.Interfaces = append(append([]string(nil), def.Interfaces...), ext.Interfaces...)
		def.Types = append(append([]string(nil), def.Types...), ext.Types...)
		def.EnumValues = append(def.EnumValues, ext.EnumValues...)
	}
	return out
}

func implementsNode(def *language.Definition) bool {
	if def.Kind != language.Object {
		return false
	}
	for _, i := range def.Interfaces {
		if i == nodeInterface {
			return true
		}
	}
	return false
}

// signature renders the parts of a definition that must agree across schemas.
func signature(def *language.Definition) string {
	parts := []string{string(def.Kind)}
	ifaces := append([]string(nil), def.Interfaces...)
	sort.Strings(ifaces)
	parts = append(parts, "implements "+strings.Join(ifaces, "&"))
	types := append([]string(nil), def.Types...)
	sort.Strings(types)
	parts = append(parts, "types "+strings.Join(types, "|"))
	fields := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		args := make([]string, 0, len(f.Arguments))
		for _, a := range f.Arguments {
			args = append(args, a.Name+":"+a.Type.String())
		}
		fields = append(fields, f.Name+"("+strings.Join(args, ",")+"):"+f.Type.String())
	}
	sort.Strings(fields)
	parts = append(parts, fields...)
	for _, v := range def.EnumValues {
		parts = append(parts, "enum "+v.Name)
	}
	return strings.Join(parts, "\n")
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
