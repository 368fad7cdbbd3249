package jsdb

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// wrapping is a way of presenting the source to the grammar. Data files are
// usually whole programs (`const DB = {...};`), but a bare JSON object or a
// list of `"code": {...}` members is accepted too.
type wrapping struct {
	prefix string
	suffix string
}

var wrappings = []wrapping{
	{"", ""},
	{"(\n", "\n)"},
	{"({\n", "\n})"},
}

// SyntaxError reports a document the JavaScript grammar cannot parse.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Column, e.Msg)
}

func newSyntaxError(src []byte, offset int, format string, args ...interface{}) *SyntaxError {
	line, col := position(src, offset)
	return &SyntaxError{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

// position converts a byte offset into a 1-based line and column.
func position(src []byte, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(src) {
		offset = len(src)
	}
	line, col := 1, 1
	for _, b := range src[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// Parse builds the object model of src.
func Parse(src []byte) (*Document, error) {
	return ParseContext(context.Background(), src)
}

// ParseContext parses src with the tree-sitter JavaScript grammar. The
// source is tried as a program first, then as an expression, then as the
// members of an object literal; the first reading without syntax errors
// wins. If none parses cleanly the first error of the program reading is
// returned.
func ParseContext(ctx context.Context, src []byte) (*Document, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	body := src
	skip := 0
	if bytes.HasPrefix(src, bom) {
		body = src[len(bom):]
		skip = len(bom)
	}

	var (
		firstErr error
		empty    *Document
	)
	for _, w := range wrappings {
		text := make([]byte, 0, len(w.prefix)+len(body)+len(w.suffix))
		text = append(text, w.prefix...)
		text = append(text, body...)
		text = append(text, w.suffix...)

		tree, err := parser.ParseCtx(ctx, nil, text)
		if err != nil {
			return nil, fmt.Errorf("jsdb: parse: %w", err)
		}
		root := tree.RootNode()
		if !root.HasError() {
			b := &builder{src: src, shift: len(w.prefix) - skip}
			doc := &Document{src: src, roots: b.collect(root)}
			tree.Close()
			// A bare `{ a: {...} }` is a valid block of labels; keep looking
			// for a reading that yields objects.
			if len(doc.roots) > 0 {
				return doc, nil
			}
			if empty == nil {
				empty = doc
			}
			continue
		}
		if firstErr == nil {
			firstErr = syntaxErrorAt(src, root, len(w.prefix)-skip)
		}
		tree.Close()
	}
	if empty != nil {
		return empty, nil
	}
	return nil, firstErr
}

// syntaxErrorAt reports the first error or missing node in pre-order.
func syntaxErrorAt(src []byte, root *sitter.Node, shift int) *SyntaxError {
	var bad *sitter.Node
	var find func(n *sitter.Node) bool
	find = func(n *sitter.Node) bool {
		if n.Type() == "ERROR" || n.IsMissing() {
			bad = n
			return true
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil && (c.HasError() || c.IsMissing()) {
				if find(c) {
					return true
				}
			}
		}
		return false
	}
	find(root)
	if bad == nil {
		return newSyntaxError(src, len(src), "invalid JavaScript")
	}
	offset := int(bad.StartByte()) - shift
	if bad.IsMissing() {
		return newSyntaxError(src, offset, "missing %s", bad.Type())
	}
	return newSyntaxError(src, offset, "unexpected %s", snippet(src, offset))
}

func snippet(src []byte, offset int) string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(src) {
		return "end of input"
	}
	end := offset + 16
	if end > len(src) {
		end = len(src)
	}
	if i := bytes.IndexByte(src[offset:end], '\n'); i >= 0 {
		end = offset + i
	}
	return strconv.Quote(string(src[offset:end]))
}

// builder converts tree-sitter nodes into the object model. Node offsets
// are relative to the wrapped text; shift maps them back onto src.
type builder struct {
	src   []byte
	shift int
}

func (b *builder) start(n *sitter.Node) int { return b.clamp(int(n.StartByte()) - b.shift) }
func (b *builder) end(n *sitter.Node) int   { return b.clamp(int(n.EndByte()) - b.shift) }

func (b *builder) clamp(off int) int {
	if off < 0 {
		return 0
	}
	if off > len(b.src) {
		return len(b.src)
	}
	return off
}

func (b *builder) text(n *sitter.Node) string {
	return string(b.src[b.start(n):b.end(n)])
}

// collect returns the outermost object literals below n in document order.
func (b *builder) collect(n *sitter.Node) []*Object {
	if n.Type() == "object" {
		return []*Object{b.object(n)}
	}
	var out []*Object
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, b.collect(n.NamedChild(i))...)
	}
	return out
}

func (b *builder) object(n *sitter.Node) *Object {
	obj := &Object{Start: b.start(n), End: b.end(n)}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "comment":
			continue
		case "pair":
			keyNode := child.ChildByFieldName("key")
			valueNode := child.ChildByFieldName("value")
			if keyNode == nil || valueNode == nil {
				continue
			}
			prop := &Property{KeyStart: b.start(keyNode), Value: b.value(valueNode)}
			switch keyNode.Type() {
			case "string":
				prop.Key = b.stringValue(keyNode)
				prop.Quoted = true
			case "property_identifier", "number":
				prop.Key = b.text(keyNode)
			default:
				prop.Anonymous = true
			}
			obj.Props = append(obj.Props, prop)
		default:
			// Spreads, shorthand properties and methods keep their nested
			// objects reachable.
			obj.Props = append(obj.Props, &Property{
				Anonymous: true,
				KeyStart:  b.start(child),
				Value:     b.value(child),
			})
		}
	}
	return obj
}

func (b *builder) value(n *sitter.Node) *Value {
	v := &Value{Kind: KindOther, Start: b.start(n), End: b.end(n)}
	switch n.Type() {
	case "object":
		v.Kind = KindObject
		v.Object = b.object(n)
		return v
	case "number":
		v.Kind = KindScalar
		v.numeric = true
	case "null":
		v.Kind = KindScalar
		v.null = true
	case "string", "true", "false", "undefined", "identifier":
		v.Kind = KindScalar
	case "template_string":
		if !hasChild(n, "template_substitution") {
			v.Kind = KindScalar
		}
	case "unary_expression":
		op := n.ChildByFieldName("operator")
		arg := n.ChildByFieldName("argument")
		if op != nil && arg != nil && arg.Type() == "number" && (op.Type() == "-" || op.Type() == "+") {
			v.Kind = KindScalar
			v.numeric = true
		}
	}
	if v.Kind == KindScalar {
		v.text = string(b.src[v.Start:v.End])
		v.orig = v.text
		return v
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		v.Objects = append(v.Objects, b.collect(n.NamedChild(i))...)
	}
	return v
}

// stringValue decodes a string literal node.
func (b *builder) stringValue(n *sitter.Node) string {
	var out []byte
	for i := 0; i < int(n.NamedChildCount()); i++ {
		part := n.NamedChild(i)
		raw := b.text(part)
		switch part.Type() {
		case "escape_sequence":
			if s, err := strconv.Unquote(`"` + raw + `"`); err == nil {
				out = append(out, s...)
			} else if len(raw) > 1 {
				out = append(out, raw[1:]...)
			}
		case "comment":
		default:
			out = append(out, raw...)
		}
	}
	return string(out)
}

func hasChild(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if n.NamedChild(i).Type() == typ {
			return true
		}
	}
	return false
}
