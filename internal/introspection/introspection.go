// Package introspection answers __schema, __type and root __typename fields
// from the composite schema, so introspection never reaches a backend.
package introspection

import (
	"context"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"

	language "github.com/hanpama/compositegraph/internal/language"
	memlayer "github.com/hanpama/compositegraph/internal/memlayer"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
)

// Layer serves introspection root fields itself and hands every other request
// to the wrapped layer.
type Layer struct {
	base network.Layer
	self *memlayer.Layer
}

var _ network.Layer = (*Layer)(nil)

// Wrap returns a layer answering introspection of s in front of base.
func Wrap(base network.Layer, s *language.Schema) *Layer {
	return &Layer{base: base, self: memlayer.New("introspection", Schema(s))}
}

// Handles reports whether root is answered by the introspection layer.
func Handles(root query.Node) bool {
	switch r := root.(type) {
	case *query.Root:
		return r.FieldName == "__schema" || r.FieldName == "__type" || r.FieldName == "__typename"
	case *query.Mutation:
		return r.FieldName == "__typename"
	}
	return false
}

func (l *Layer) SendQueries(ctx context.Context, requests []*network.Request) error {
	var own, rest []*network.Request
	for _, req := range requests {
		if Handles(req.Query()) {
			own = append(own, req)
		} else {
			rest = append(rest, req)
		}
	}
	if len(own) > 0 {
		if err := l.self.SendQueries(ctx, own); err != nil {
			return err
		}
	}
	if len(rest) == 0 {
		return nil
	}
	return l.base.SendQueries(ctx, rest)
}

func (l *Layer) SendMutation(ctx context.Context, request *network.Request) error {
	if Handles(request.Query()) {
		return l.self.SendMutation(ctx, request)
	}
	return l.base.SendMutation(ctx, request)
}

// Schema returns resolvers over s for the introspection types. Named and
// wrapping types are both represented as *ast.Type.
func Schema(s *language.Schema) memlayer.Schema {
	r := resolver{s: s}
	res := map[string]memlayer.Resolver{
		"__Schema.types":            r.schemaTypes,
		"__Schema.queryType":        r.rootType(s.Query),
		"__Schema.mutationType":     r.rootType(s.Mutation),
		"__Schema.subscriptionType": r.rootType(s.Subscription),
		"__Schema.directives":       r.schemaDirectives,
		"__Schema.description":      func(context.Context, any, map[string]any) (any, error) { return optional(s.Description), nil },

		"__Type.kind":           r.typeKind,
		"__Type.name":           r.typeName,
		"__Type.description":    r.typeDefField(func(d *ast.Definition, _ map[string]any) any { return optional(d.Description) }),
		"__Type.specifiedByURL": r.typeDefField(specifiedByURL),
		"__Type.fields":         r.typeDefField(fields),
		"__Type.interfaces":     r.typeDefField(r.interfaces),
		"__Type.possibleTypes":  r.typeDefField(r.possibleTypes),
		"__Type.enumValues":     r.typeDefField(enumValues),
		"__Type.inputFields":    r.typeDefField(inputFields),
		"__Type.isOneOf":        r.typeDefField(isOneOf),
		"__Type.ofType":         ofType,

		"__Field.description":       field(func(f *ast.FieldDefinition) any { return optional(f.Description) }),
		"__Field.args":              fieldArgs,
		"__Field.type":              field(func(f *ast.FieldDefinition) any { return f.Type }),
		"__Field.isDeprecated":      field(func(f *ast.FieldDefinition) any { return deprecated(f.Directives) }),
		"__Field.deprecationReason": field(func(f *ast.FieldDefinition) any { return deprecationReason(f.Directives) }),

		"__InputValue.description":       inputValue(func(a *ast.ArgumentDefinition) any { return optional(a.Description) }),
		"__InputValue.type":              inputValue(func(a *ast.ArgumentDefinition) any { return a.Type }),
		"__InputValue.defaultValue":      inputValue(defaultValue),
		"__InputValue.isDeprecated":      inputValue(func(a *ast.ArgumentDefinition) any { return deprecated(a.Directives) }),
		"__InputValue.deprecationReason": inputValue(func(a *ast.ArgumentDefinition) any { return deprecationReason(a.Directives) }),

		"__EnumValue.description":       enumValue(func(v *ast.EnumValueDefinition) any { return optional(v.Description) }),
		"__EnumValue.isDeprecated":      enumValue(func(v *ast.EnumValueDefinition) any { return deprecated(v.Directives) }),
		"__EnumValue.deprecationReason": enumValue(func(v *ast.EnumValueDefinition) any { return deprecationReason(v.Directives) }),

		"__Directive.description":  directive(func(d *ast.DirectiveDefinition, _ map[string]any) any { return optional(d.Description) }),
		"__Directive.isRepeatable": directive(func(d *ast.DirectiveDefinition, _ map[string]any) any { return d.IsRepeatable }),
		"__Directive.locations":    directive(locations),
		"__Directive.args":         directive(directiveArgs),
	}
	for _, name := range []string{"__Field", "__InputValue", "__EnumValue", "__Directive"} {
		res[name+".name"] = nameOf
	}

	queryType, mutationType := "Query", "Mutation"
	if s.Query != nil {
		queryType = s.Query.Name
	}
	if s.Mutation != nil {
		mutationType = s.Mutation.Name
	}
	res[queryType+".__schema"] = func(context.Context, any, map[string]any) (any, error) { return s, nil }
	res[queryType+".__type"] = r.lookupType
	res[queryType+".__typename"] = constant(queryType)
	res[mutationType+".__typename"] = constant(mutationType)

	return memlayer.Schema{
		QueryType:    queryType,
		MutationType: mutationType,
		Resolvers:    res,
		TypeOf:       func(any) string { return "" },
	}
}

type resolver struct {
	s *language.Schema
}

func (r resolver) schemaTypes(context.Context, any, map[string]any) (any, error) {
	names := make([]string, 0, len(r.s.Types))
	for name := range r.s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = ast.NamedType(name, nil)
	}
	return out, nil
}

func (r resolver) schemaDirectives(context.Context, any, map[string]any) (any, error) {
	names := make([]string, 0, len(r.s.Directives))
	for name := range r.s.Directives {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = r.s.Directives[name]
	}
	return out, nil
}

func (r resolver) rootType(def *ast.Definition) memlayer.Resolver {
	return func(context.Context, any, map[string]any) (any, error) {
		if def == nil {
			return nil, nil
		}
		return ast.NamedType(def.Name, nil), nil
	}
}

func (r resolver) lookupType(_ context.Context, _ any, args map[string]any) (any, error) {
	name, _ := args["name"].(string)
	if r.s.Types[name] == nil {
		return nil, nil
	}
	return ast.NamedType(name, nil), nil
}

func (r resolver) definition(t *ast.Type) *ast.Definition {
	if t == nil || t.NonNull || t.Elem != nil {
		return nil
	}
	return r.s.Types[t.NamedType]
}

func (r resolver) typeKind(_ context.Context, src any, _ map[string]any) (any, error) {
	t, _ := src.(*ast.Type)
	switch {
	case t == nil:
		return nil, nil
	case t.NonNull:
		return "NON_NULL", nil
	case t.Elem != nil:
		return "LIST", nil
	}
	if def := r.definition(t); def != nil {
		return string(def.Kind), nil
	}
	return nil, nil
}

func (r resolver) typeName(_ context.Context, src any, _ map[string]any) (any, error) {
	t, _ := src.(*ast.Type)
	if t == nil || t.NonNull || t.Elem != nil {
		return nil, nil
	}
	return t.NamedType, nil
}

// typeDefField resolves a __Type field that only named types carry.
func (r resolver) typeDefField(fn func(d *ast.Definition, args map[string]any) any) memlayer.Resolver {
	return func(_ context.Context, src any, args map[string]any) (any, error) {
		t, _ := src.(*ast.Type)
		def := r.definition(t)
		if def == nil {
			return nil, nil
		}
		return fn(def, args), nil
	}
}

func ofType(_ context.Context, src any, _ map[string]any) (any, error) {
	t, _ := src.(*ast.Type)
	switch {
	case t == nil:
		return nil, nil
	case t.NonNull:
		cp := *t
		cp.NonNull = false
		return &cp, nil
	case t.Elem != nil:
		return t.Elem, nil
	}
	return nil, nil
}

func fields(d *ast.Definition, args map[string]any) any {
	if d.Kind != ast.Object && d.Kind != ast.Interface {
		return nil
	}
	all := includeDeprecated(args)
	out := []any{}
	for _, f := range d.Fields {
		if len(f.Name) > 1 && f.Name[:2] == "__" {
			continue
		}
		if !all && deprecated(f.Directives) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (r resolver) interfaces(d *ast.Definition, _ map[string]any) any {
	if d.Kind != ast.Object && d.Kind != ast.Interface {
		return nil
	}
	out := []any{}
	for _, name := range d.Interfaces {
		out = append(out, ast.NamedType(name, nil))
	}
	return out
}

func (r resolver) possibleTypes(d *ast.Definition, _ map[string]any) any {
	if d.Kind != ast.Interface && d.Kind != ast.Union {
		return nil
	}
	var names []string
	for _, pt := range r.s.GetPossibleTypes(d) {
		names = append(names, pt.Name)
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = ast.NamedType(name, nil)
	}
	return out
}

func enumValues(d *ast.Definition, args map[string]any) any {
	if d.Kind != ast.Enum {
		return nil
	}
	all := includeDeprecated(args)
	out := []any{}
	for _, v := range d.EnumValues {
		if !all && deprecated(v.Directives) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func inputFields(d *ast.Definition, args map[string]any) any {
	if d.Kind != ast.InputObject {
		return nil
	}
	all := includeDeprecated(args)
	out := []any{}
	for _, f := range d.Fields {
		if !all && deprecated(f.Directives) {
			continue
		}
		out = append(out, &ast.ArgumentDefinition{
			Description:  f.Description,
			Name:         f.Name,
			DefaultValue: f.DefaultValue,
			Type:         f.Type,
			Directives:   f.Directives,
			Position:     f.Position,
		})
	}
	return out
}

func specifiedByURL(d *ast.Definition, _ map[string]any) any {
	if d.Kind != ast.Scalar {
		return nil
	}
	if dir := d.Directives.ForName("specifiedBy"); dir != nil {
		if arg := dir.Arguments.ForName("url"); arg != nil && arg.Value != nil {
			return arg.Value.Raw
		}
	}
	return nil
}

func isOneOf(d *ast.Definition, _ map[string]any) any {
	if d.Kind != ast.InputObject {
		return nil
	}
	return d.Directives.ForName("oneOf") != nil
}

func fieldArgs(_ context.Context, src any, args map[string]any) (any, error) {
	f, _ := src.(*ast.FieldDefinition)
	if f == nil {
		return nil, nil
	}
	return arguments(f.Arguments, args), nil
}

func directiveArgs(d *ast.DirectiveDefinition, args map[string]any) any {
	return arguments(d.Arguments, args)
}

func arguments(list ast.ArgumentDefinitionList, args map[string]any) []any {
	all := includeDeprecated(args)
	out := []any{}
	for _, a := range list {
		if !all && deprecated(a.Directives) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func defaultValue(a *ast.ArgumentDefinition) any {
	if a.DefaultValue == nil {
		return nil
	}
	return a.DefaultValue.String()
}

func locations(d *ast.DirectiveDefinition, _ map[string]any) any {
	out := make([]any, len(d.Locations))
	for i, l := range d.Locations {
		out[i] = string(l)
	}
	return out
}

func nameOf(_ context.Context, src any, _ map[string]any) (any, error) {
	switch v := src.(type) {
	case *ast.FieldDefinition:
		return v.Name, nil
	case *ast.ArgumentDefinition:
		return v.Name, nil
	case *ast.EnumValueDefinition:
		return v.Name, nil
	case *ast.DirectiveDefinition:
		return v.Name, nil
	}
	return nil, nil
}

func field(fn func(*ast.FieldDefinition) any) memlayer.Resolver {
	return func(_ context.Context, src any, _ map[string]any) (any, error) {
		if f, ok := src.(*ast.FieldDefinition); ok {
			return fn(f), nil
		}
		return nil, nil
	}
}

func inputValue(fn func(*ast.ArgumentDefinition) any) memlayer.Resolver {
	return func(_ context.Context, src any, _ map[string]any) (any, error) {
		if a, ok := src.(*ast.ArgumentDefinition); ok {
			return fn(a), nil
		}
		return nil, nil
	}
}

func enumValue(fn func(*ast.EnumValueDefinition) any) memlayer.Resolver {
	return func(_ context.Context, src any, _ map[string]any) (any, error) {
		if v, ok := src.(*ast.EnumValueDefinition); ok {
			return fn(v), nil
		}
		return nil, nil
	}
}

func directive(fn func(*ast.DirectiveDefinition, map[string]any) any) memlayer.Resolver {
	return func(_ context.Context, src any, args map[string]any) (any, error) {
		if d, ok := src.(*ast.DirectiveDefinition); ok {
			return fn(d, args), nil
		}
		return nil, nil
	}
}

func constant(v string) memlayer.Resolver {
	return func(context.Context, any, map[string]any) (any, error) { return v, nil }
}

func deprecated(dirs ast.DirectiveList) bool {
	return dirs.ForName("deprecated") != nil
}

func deprecationReason(dirs ast.DirectiveList) any {
	d := dirs.ForName("deprecated")
	if d == nil {
		return nil
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return "No longer supported"
}

func includeDeprecated(args map[string]any) bool {
	b, _ := args["includeDeprecated"].(bool)
	return b
}

// optional maps empty descriptions to null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
