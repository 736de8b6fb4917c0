package response

import "reflect"

// ValueKind classifies a node of an untyped response tree.
type ValueKind int

const (
	Null ValueKind = iota
	Scalar
	Mapping
	Sequence
)

func (k ValueKind) String() string {
	switch k {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case Mapping:
		return "mapping"
	case Sequence:
		return "sequence"
	}
	return "unknown"
}

// KindOf reports the kind of v. Response trees hold map[string]any for
// objects and []any for lists; everything else is a scalar.
func KindOf(v any) ValueKind {
	switch v.(type) {
	case nil:
		return Null
	case map[string]any:
		return Mapping
	case []any:
		return Sequence
	default:
		return Scalar
	}
}

// Target is an identifiable object found while walking a dependent path.
type Target struct {
	ID   any
	Path Path
}

// NodesAt returns every object reachable from tree along path that carries an
// `id`. List values met on the way are expanded element by element and the
// returned paths carry the element index. Objects without an identifier and
// missing branches are skipped.
func NodesAt(tree any, path Path) []Target {
	return NodesAtKey(tree, path, "id")
}

// NodesAtKey is NodesAt reading the identifier from idKey.
func NodesAtKey(tree any, path Path, idKey string) []Target {
	var out []Target
	collectTargets(tree, path, nil, idKey, &out)
	return out
}

func collectTargets(v any, rest Path, back Path, idKey string, out *[]Target) {
	switch KindOf(v) {
	case Sequence:
		list := v.([]any)
		if len(rest) > 0 && rest[0].IsIndex() {
			i := rest[0].Index()
			if i < len(list) {
				collectTargets(list[i], rest[1:], back.Append(rest[0]), idKey, out)
			}
			return
		}
		for i, item := range list {
			collectTargets(item, rest, back.Append(Index(i)), idKey, out)
		}
	case Mapping:
		obj := v.(map[string]any)
		if len(rest) == 0 {
			if id := obj[idKey]; hasID(id) {
				*out = append(*out, Target{ID: id, Path: back})
			}
			return
		}
		if rest[0].IsIndex() {
			return
		}
		collectTargets(obj[rest[0].Key()], rest[1:], back.Append(rest[0]), idKey, out)
	}
}

func hasID(id any) bool {
	switch v := id.(type) {
	case nil:
		return false
	case string:
		return v != ""
	default:
		return true
	}
}

// Get returns the value at path, or nil when any step is missing.
func Get(tree any, path Path) any {
	cur := tree
	for _, seg := range path {
		switch KindOf(cur) {
		case Mapping:
			if seg.IsIndex() {
				return nil
			}
			cur = cur.(map[string]any)[seg.Key()]
		case Sequence:
			list := cur.([]any)
			if !seg.IsIndex() || seg.Index() >= len(list) {
				return nil
			}
			cur = list[seg.Index()]
		default:
			return nil
		}
	}
	return cur
}

// UpdateIn returns a copy of tree where the value at path is replaced by
// fn(old). Containers along the path are copied, never mutated; missing
// intermediate objects are created.
func UpdateIn(tree any, path Path, fn func(any) any) any {
	if len(path) == 0 {
		return fn(tree)
	}
	seg := path[0]
	if seg.IsIndex() {
		list, _ := tree.([]any)
		n := len(list)
		if seg.Index() >= n {
			n = seg.Index() + 1
		}
		cp := make([]any, n)
		copy(cp, list)
		cp[seg.Index()] = UpdateIn(cp[seg.Index()], path[1:], fn)
		return cp
	}
	obj, _ := tree.(map[string]any)
	cp := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		cp[k] = v
	}
	child := cp[seg.Key()]
	if child == nil {
		child = map[string]any{}
	}
	cp[seg.Key()] = UpdateIn(child, path[1:], fn)
	return cp
}

// ConflictFunc is notified when a merge replaces a scalar with a different
// value.
type ConflictFunc func(path Path, prev, next any)

// MergeAt deep merges fields into the object found at path and returns the
// new tree. Values from fields win.
func MergeAt(tree any, path Path, fields map[string]any, conflict ConflictFunc) any {
	return UpdateIn(tree, path, func(cur any) any {
		return mergeValue(cur, fields, path, conflict)
	})
}

// Merge deep merges src into dst and returns the result without mutating
// either input. Mappings merge key by key, sequences of equal length merge
// element-wise, and in every other case src wins.
func Merge(dst, src any, conflict ConflictFunc) any {
	return mergeValue(dst, src, nil, conflict)
}

func mergeValue(dst, src any, at Path, conflict ConflictFunc) any {
	dk, sk := KindOf(dst), KindOf(src)
	switch {
	case dk == Mapping && sk == Mapping:
		d, s := dst.(map[string]any), src.(map[string]any)
		out := make(map[string]any, len(d)+len(s))
		for k, v := range d {
			out[k] = v
		}
		for k, v := range s {
			if old, ok := out[k]; ok {
				out[k] = mergeValue(old, v, at.Append(Key(k)), conflict)
			} else {
				out[k] = v
			}
		}
		return out
	case dk == Sequence && sk == Sequence && len(dst.([]any)) == len(src.([]any)):
		d, s := dst.([]any), src.([]any)
		out := make([]any, len(d))
		for i := range d {
			out[i] = mergeValue(d[i], s[i], at.Append(Index(i)), conflict)
		}
		return out
	case dk == Null:
		return src
	case sk == Null:
		return dst
	}
	if conflict != nil && !reflect.DeepEqual(dst, src) {
		conflict(at, dst, src)
	}
	return src
}
