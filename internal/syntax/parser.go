package syntax

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"downlevel/internal/logging"
	"downlevel/internal/sourcemap"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Parse parses TypeScript source into a File. A new tree-sitter parser is
// created per call, so Parse is safe to call from concurrent workers.
// The caller owns the result and must Close it.
func Parse(ctx context.Context, name string, src []byte) (*File, error) {
	start := time.Now()
	logging.ParseDebug("parsing %s (%d bytes)", filepath.Base(name), len(src))

	parser := sitter.NewParser()
	defer parser.Close()
	if strings.EqualFold(filepath.Ext(name), ".tsx") {
		parser.SetLanguage(tsx.GetLanguage())
	} else {
		parser.SetLanguage(typescript.GetLanguage())
	}

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		logging.Get(logging.CategoryParse).Error("parse failed: %s - %v", name, err)
		return nil, fmt.Errorf("tree-sitter parse of %s failed: %w", name, err)
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, fmt.Errorf("tree-sitter returned no root node for %s", name)
	}

	f := &File{
		Name:      name,
		Text:      src,
		HasErrors: root.HasError(),
		lines:     sourcemap.NewLineIndex(src),
		tree:      tree,
	}
	if f.HasErrors {
		logging.ParseWarn("%s has syntax errors; lowering what parsed cleanly", name)
	}

	b := &builder{src: src}
	b.collect(root)
	f.Classes = b.classes

	logging.ParseDebug("parsed %s - %d classes in %v", filepath.Base(name), len(f.Classes), time.Since(start))
	return f, nil
}

type builder struct {
	src     []byte
	classes []*Class
}

func (b *builder) text(n *sitter.Node) string {
	return n.Content(b.src)
}

func spanOf(n *sitter.Node) Span {
	return Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

// collect walks the tree post-order so nested classes precede their hosts.
func (b *builder) collect(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		b.collect(n.NamedChild(i))
	}
	switch n.Type() {
	case "class_declaration", "abstract_class_declaration", "class":
		if c := b.class(n); c != nil {
			b.classes = append(b.classes, c)
		}
	}
}

func (b *builder) class(n *sitter.Node) *Class {
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	c := &Class{
		Span:        spanOf(n),
		Body:        spanOf(body),
		FirstMember: -1,
	}
	if name := n.ChildByFieldName("name"); name != nil {
		c.Name = b.text(name)
	}

	// Decorators written before `export` belong to the export statement.
	if parent := n.Parent(); parent != nil && parent.Type() == "export_statement" {
		for i := 0; i < int(parent.NamedChildCount()); i++ {
			if child := parent.NamedChild(i); child.Type() == "decorator" {
				c.Decorators = append(c.Decorators, b.decorator(child, TargetClass))
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "decorator" {
			c.Decorators = append(c.Decorators, b.decorator(child, TargetClass))
		}
	}
	if len(c.Decorators) > 0 && c.Decorators[0].Span.Start < c.Span.Start {
		c.Span.Start = c.Decorators[0].Span.Start
	}

	b.classBody(c, body)
	return c
}

func (b *builder) classBody(c *Class, body *sitter.Node) {
	var pending []*Decorator
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		kind := child.Type()
		if kind == "comment" {
			continue
		}
		if c.FirstMember < 0 {
			c.FirstMember = int(child.StartByte())
		}

		switch kind {
		case "decorator":
			pending = append(pending, b.decorator(child, TargetMethod))

		case "method_definition":
			if b.isConstructor(child) {
				if c.Ctor == nil {
					c.Ctor = b.constructor(child)
				}
				pending = nil
				continue
			}
			m := b.member(child, TargetMethod, pending)
			c.Members = append(c.Members, m)
			pending = nil

		case "public_field_definition", "field_definition":
			m := b.member(child, TargetProperty, pending)
			c.Members = append(c.Members, m)
			pending = nil

		default:
			// Signatures, index signatures and static blocks carry no
			// lowerable decorators.
			pending = nil
		}
	}
}

func (b *builder) isConstructor(n *sitter.Node) bool {
	name := n.ChildByFieldName("name")
	if name == nil {
		return false
	}
	switch name.Type() {
	case "property_identifier", "identifier":
		return b.text(name) == "constructor"
	case "string":
		return unquote(b.text(name)) == "constructor"
	}
	return false
}

// member builds a Member from a method or field node. Decorators that
// appeared as preceding siblings in the class body are passed in pending.
func (b *builder) member(n *sitter.Node, kind Target, pending []*Decorator) *Member {
	m := &Member{Kind: kind, Span: spanOf(n)}
	name := n.ChildByFieldName("name")

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if name != nil && child.StartByte() == name.StartByte() && child.EndByte() == name.EndByte() {
			break
		}
		switch child.Type() {
		case "get", "set":
			if kind == TargetMethod {
				m.Kind = TargetAccessor
			}
		case "accessor":
			m.Kind = TargetAccessor
		case "static":
			m.Static = true
		}
	}

	decorators := make([]*Decorator, 0, len(pending))
	decorators = append(decorators, pending...)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "decorator" {
			decorators = append(decorators, b.decorator(child, kind))
		}
	}
	for _, d := range decorators {
		d.Target = m.Kind
	}
	m.Decorators = decorators
	if len(decorators) > 0 && decorators[0].Span.Start < m.Span.Start {
		m.Span.Start = decorators[0].Span.Start
	}

	if name == nil {
		m.NameKind = NameComputed
		return m
	}
	switch name.Type() {
	case "property_identifier", "identifier":
		m.Name, m.NameKind = b.text(name), NameIdentifier
	case "private_property_identifier":
		m.Name, m.NameKind = b.text(name), NamePrivate
	case "string":
		m.Name, m.NameKind = unquote(b.text(name)), NameString
	case "number":
		m.Name, m.NameKind = b.text(name), NameNumber
	default:
		m.NameKind = NameComputed
	}
	return m
}

func (b *builder) constructor(n *sitter.Node) *Constructor {
	ctor := &Constructor{Span: spanOf(n)}
	params := n.ChildByFieldName("parameters")
	if params == nil {
		return ctor
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		switch child.Type() {
		case "required_parameter", "optional_parameter":
			ctor.Params = append(ctor.Params, b.parameter(child))
		}
	}
	return ctor
}

func (b *builder) parameter(n *sitter.Node) *Parameter {
	p := &Parameter{
		Span:     spanOf(n),
		Optional: n.Type() == "optional_parameter",
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "decorator" {
			p.Decorators = append(p.Decorators, b.decorator(child, TargetParameter))
		}
	}
	if pattern := n.ChildByFieldName("pattern"); pattern != nil {
		switch pattern.Type() {
		case "identifier":
			p.Name, p.Pattern = b.text(pattern), PatternIdentifier
		case "this":
			p.Pattern = PatternThis
		case "rest_pattern":
			p.Pattern = PatternRest
		default:
			p.Pattern = PatternDestructured
		}
	}
	if value := n.ChildByFieldName("value"); value != nil {
		p.HasDefault = true
	}
	if annotation := n.ChildByFieldName("type"); annotation != nil {
		p.Type = b.typeRef(annotation)
	}
	return p
}

// typeRef classifies a type_annotation (or a bare type node).
func (b *builder) typeRef(n *sitter.Node) *TypeRef {
	t := n
	if t.Type() == "type_annotation" {
		t = firstNamed(t)
		if t == nil {
			return nil
		}
	}
	for t.Type() == "parenthesized_type" {
		inner := firstNamed(t)
		if inner == nil {
			break
		}
		t = inner
	}

	ref := &TypeRef{Kind: TypeOther, Span: spanOf(t)}
	switch t.Type() {
	case "type_identifier", "nested_type_identifier", "identifier":
		if path, ok := b.qualifiedPath(t); ok {
			ref.Kind, ref.Name, ref.Path = TypeReference, spanOf(t), path
		}
	case "generic_type":
		name := t.ChildByFieldName("name")
		if name == nil {
			name = firstNamed(t)
		}
		if name != nil {
			if path, ok := b.qualifiedPath(name); ok {
				ref.Kind, ref.Name, ref.Path, ref.Generic = TypeReference, spanOf(name), path, true
			}
		}
	case "predefined_type":
		ref.Kind = TypePredefined
	case "union_type":
		ref.Kind = TypeUnion
	case "intersection_type":
		ref.Kind = TypeIntersection
	}
	return ref
}

// decorator classifies a decorator node into reference, call or other.
func (b *builder) decorator(n *sitter.Node, target Target) *Decorator {
	d := &Decorator{Span: spanOf(n), Target: target, Form: FormOther}
	expr := firstNamed(n)
	if expr == nil {
		return d
	}

	switch expr.Type() {
	case "identifier":
		d.Form, d.Path, d.Callee = FormReference, []string{b.text(expr)}, spanOf(expr)
	case "call_expression":
		callee := expr.ChildByFieldName("function")
		if callee == nil {
			callee = firstNamed(expr)
		}
		if callee == nil {
			return d
		}
		path, ok := b.qualifiedPath(callee)
		if !ok {
			return d
		}
		d.Form, d.Path, d.Callee = FormCall, path, spanOf(callee)
		if args := expr.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				if arg := args.NamedChild(i); arg.Type() != "comment" {
					d.Args = append(d.Args, spanOf(arg))
				}
			}
		}
	}
	return d
}

// qualifiedPath flattens identifier chains such as a.b.C. Anything other
// than plain names (calls, subscripts, this) is rejected.
func (b *builder) qualifiedPath(n *sitter.Node) ([]string, bool) {
	switch n.Type() {
	case "identifier", "property_identifier", "type_identifier":
		return []string{b.text(n)}, true
	case "member_expression", "nested_identifier", "nested_type_identifier":
		var out []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "comment" {
				continue
			}
			part, ok := b.qualifiedPath(child)
			if !ok {
				return nil, false
			}
			out = append(out, part...)
		}
		return out, len(out) > 0
	}
	return nil, false
}

func firstNamed(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() != "comment" {
			return child
		}
	}
	return nil
}

// unquote strips the delimiters of a string literal, leaving escape
// sequences as written.
func unquote(s string) string {
	if len(s) >= 2 {
		q := s[0]
		if (q == '"' || q == '\'' || q == '`') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}
