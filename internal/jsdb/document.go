// Package jsdb parses JavaScript data files (object literals such as
// `const ITE_DATABASE = {...}`) into an editable object model.
//
// Parsing uses the tree-sitter JavaScript grammar. The model keeps the byte
// span of every scalar value. Edits replace those spans only, so Bytes
// reproduces the original text exactly except at the values that were
// changed. Anything that is not a plain literal (function calls, arrays,
// expressions) is carried through untouched.
package jsdb

import (
	"errors"
	"sort"
	"strconv"
)

// ErrNotScalar is returned when an edit targets an object or an expression.
var ErrNotScalar = errors.New("jsdb: value is not a scalar literal")

// Kind classifies a property value.
type Kind int

const (
	KindOther  Kind = iota // expression, array, or anything that is not a plain literal
	KindScalar             // number, string, identifier (null, true, false)
	KindObject             // object literal
)

// Value is a property value and its span in the source.
type Value struct {
	Kind   Kind
	Start  int
	End    int
	Object *Object // set for KindObject

	// Objects holds object literals nested inside a KindOther value,
	// e.g. the elements of an array.
	Objects []*Object

	text    string
	orig    string
	numeric bool
	null    bool
}

// Text returns the current source text of a scalar, including pending edits.
func (v *Value) Text() string { return v.text }

// Original returns the scalar's text as parsed.
func (v *Value) Original() string { return v.orig }

// IsNumber reports whether the scalar was parsed as a numeric literal.
func (v *Value) IsNumber() bool { return v.Kind == KindScalar && v.numeric }

// IsNull reports whether the scalar is the null literal.
func (v *Value) IsNull() bool { return v.Kind == KindScalar && v.null }

// Int parses the current text as a base-10 integer.
func (v *Value) Int() (int64, error) {
	if !v.IsNumber() {
		return 0, ErrNotScalar
	}
	return strconv.ParseInt(v.text, 10, 64)
}

// Float parses the current text as a float.
func (v *Value) Float() (float64, error) {
	if !v.IsNumber() {
		return 0, ErrNotScalar
	}
	return strconv.ParseFloat(v.text, 64)
}

// Property is one member of an object literal. Members that are not
// `key: value` pairs (spreads, shorthand, statements) are kept as anonymous
// properties so nested objects stay reachable in document order.
type Property struct {
	Key       string
	Quoted    bool
	Anonymous bool
	KeyStart  int
	Value     *Value
}

// Object is an object literal.
type Object struct {
	Start int
	End   int
	Props []*Property
}

// Get returns the first named property with the given key.
func (o *Object) Get(key string) *Property {
	for _, p := range o.Props {
		if !p.Anonymous && p.Key == key {
			return p
		}
	}
	return nil
}

// Object returns the direct child object stored under key.
func (o *Object) Object(key string) *Object {
	if p := o.Get(key); p != nil && p.Value.Kind == KindObject {
		return p.Value.Object
	}
	return nil
}

// Scalar returns the direct scalar member stored under key.
func (o *Object) Scalar(key string) *Value {
	if p := o.Get(key); p != nil && p.Value.Kind == KindScalar {
		return p.Value
	}
	return nil
}

// FindObject returns the direct child object under key, or failing that the
// first one anywhere below o in document order.
func (o *Object) FindObject(key string) *Object {
	if obj := o.Object(key); obj != nil {
		return obj
	}
	var found *Object
	o.Walk(func(p *Property) bool {
		if !p.Anonymous && p.Key == key && p.Value.Kind == KindObject {
			found = p.Value.Object
			return false
		}
		return true
	})
	return found
}

// FindScalar returns the direct scalar under key, or failing that the first
// one anywhere below o in document order.
func (o *Object) FindScalar(key string) *Value {
	if v := o.Scalar(key); v != nil {
		return v
	}
	var found *Value
	o.Walk(func(p *Property) bool {
		if !p.Anonymous && p.Key == key && p.Value.Kind == KindScalar {
			found = p.Value
			return false
		}
		return true
	})
	return found
}

// Walk visits every property below o in document order (pre-order).
// It stops when fn returns false and reports whether the walk completed.
func (o *Object) Walk(fn func(*Property) bool) bool {
	for _, p := range o.Props {
		if !fn(p) {
			return false
		}
		switch p.Value.Kind {
		case KindObject:
			if !p.Value.Object.Walk(fn) {
				return false
			}
		case KindOther:
			for _, nested := range p.Value.Objects {
				if !nested.Walk(fn) {
					return false
				}
			}
		}
	}
	return true
}

// Document is a parsed data file.
type Document struct {
	src    []byte
	roots  []*Object
	edited []*Value
}

// Roots returns the top-level object literals in document order.
func (d *Document) Roots() []*Object { return d.roots }

// Lookup returns the first object stored under the quoted key in document
// order, searching the whole document.
func (d *Document) Lookup(key string) (*Object, bool) {
	var found *Object
	for _, root := range d.roots {
		root.Walk(func(p *Property) bool {
			if p.Quoted && p.Key == key && p.Value.Kind == KindObject {
				found = p.Value.Object
				return false
			}
			return true
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// Set replaces the text of a scalar value. It reports whether the text
// changed; setting a value to its current text is a no-op.
func (d *Document) Set(v *Value, text string) (bool, error) {
	if v == nil || v.Kind != KindScalar {
		return false, ErrNotScalar
	}
	if v.text == text {
		return false, nil
	}
	v.text = text
	for _, e := range d.edited {
		if e == v {
			return true, nil
		}
	}
	d.edited = append(d.edited, v)
	return true, nil
}

// Changed reports whether any scalar differs from its parsed text.
func (d *Document) Changed() bool {
	for _, v := range d.edited {
		if v.text != v.orig {
			return true
		}
	}
	return false
}

// Source returns the text the document was parsed from.
func (d *Document) Source() []byte { return d.src }

// Position returns the 1-based line and column of a byte offset.
func (d *Document) Position(offset int) (line, col int) {
	return position(d.src, offset)
}

// Bytes serializes the document: the original source with every edited
// scalar span replaced by its current text.
func (d *Document) Bytes() []byte {
	if len(d.edited) == 0 {
		out := make([]byte, len(d.src))
		copy(out, d.src)
		return out
	}
	edits := make([]*Value, len(d.edited))
	copy(edits, d.edited)
	sort.Slice(edits, func(i, j int) bool { return edits[i].Start < edits[j].Start })

	out := make([]byte, 0, len(d.src))
	last := 0
	for _, v := range edits {
		out = append(out, d.src[last:v.Start]...)
		out = append(out, v.text...)
		last = v.End
	}
	return append(out, d.src[last:]...)
}
