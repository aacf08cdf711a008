package semantic

import (
	"strings"

	"downlevel/internal/syntax"

	sitter "github.com/smacker/go-tree-sitter"
)

// exportTarget is where exported declarations of the current module or
// namespace body are recorded. all is set inside `declare module "x"`
// blocks, whose declarations are implicitly exported.
type exportTarget struct {
	exports map[string]*Symbol
	stars   *[]string
	all     bool
}

type indexer struct {
	file     string
	src      []byte
	mod      *module
	ambients []*module
	globals  map[string]*Symbol
}

func (ix *indexer) index(root *sitter.Node) {
	ix.mod.script = true
	for i := 0; i < int(root.NamedChildCount()); i++ {
		switch root.NamedChild(i).Type() {
		case "import_statement", "export_statement":
			ix.mod.script = false
		}
	}
	ex := &exportTarget{exports: ix.mod.exports, stars: &ix.mod.stars}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		ix.walk(root.NamedChild(i), ix.mod.root, ex, false)
	}
}

func (ix *indexer) text(n *sitter.Node) string { return n.Content(ix.src) }

func span(n *sitter.Node) syntax.Span {
	return syntax.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func (ix *indexer) symbol(name string, kind Kind, n *sitter.Node) *Symbol {
	return &Symbol{
		Name:   name,
		Kind:   kind,
		Doc:    ix.docOf(n),
		File:   ix.file,
		Offset: int(n.StartByte()),
		mod:    ix.mod,
	}
}

func (ix *indexer) declare(sc *scope, sym *Symbol, ex *exportTarget, exported bool) *Symbol {
	if old := sc.symbols[sym.Name]; old != nil && old != sym {
		sym = merge(old, sym)
	}
	sc.symbols[sym.Name] = sym
	if ex != nil && (exported || ex.all) {
		ex.exports[sym.Name] = sym
	}
	return sym
}

func (ix *indexer) walk(n *sitter.Node, sc *scope, ex *exportTarget, exported bool) {
	switch n.Type() {
	case "comment":
		return

	case "import_statement":
		ix.importStatement(n, sc)

	case "export_statement":
		ix.exportStatement(n, sc, ex)

	case "class_declaration", "abstract_class_declaration":
		inner := newScope(span(n), sc)
		if name := n.ChildByFieldName("name"); name != nil {
			ix.declare(sc, ix.symbol(ix.text(name), KindClass, n), ex, exported)
		}
		ix.typeParameters(n, inner)
		ix.children(n, inner)

	case "class":
		inner := newScope(span(n), sc)
		if name := n.ChildByFieldName("name"); name != nil {
			ix.declare(inner, ix.symbol(ix.text(name), KindClass, n), nil, false)
		}
		ix.typeParameters(n, inner)
		ix.children(n, inner)

	case "function_declaration", "generator_function_declaration", "function_signature":
		if name := n.ChildByFieldName("name"); name != nil {
			ix.declare(sc, ix.symbol(ix.text(name), KindFunction, n), ex, exported)
		}
		ix.function(n, sc)

	case "function_expression", "function", "generator_function", "arrow_function",
		"method_definition", "method_signature", "abstract_method_signature":
		ix.function(n, sc)

	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			decl := n.NamedChild(i)
			if decl.Type() != "variable_declarator" {
				continue
			}
			if name := decl.ChildByFieldName("name"); name != nil {
				ix.bindPattern(name, sc, ex, exported, n)
			}
			if value := decl.ChildByFieldName("value"); value != nil {
				ix.walk(value, sc, nil, false)
			}
		}

	case "enum_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			ix.declare(sc, ix.symbol(ix.text(name), KindEnum, n), ex, exported)
		}

	case "interface_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			ix.declare(sc, ix.symbol(ix.text(name), KindInterface, n), ex, exported)
		}

	case "type_alias_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			ix.declare(sc, ix.symbol(ix.text(name), KindTypeAlias, n), ex, exported)
		}

	case "import_alias":
		// import A = B.C;
		if id := firstNamed(n); id != nil && id.Type() == "identifier" {
			ix.declare(sc, ix.symbol(ix.text(id), KindVariable, n), ex, exported)
		}

	case "internal_module", "module":
		ix.moduleDeclaration(n, sc, ex, exported)

	case "ambient_declaration":
		if hasChild(n, "global") {
			block := lastNamed(n)
			if block != nil {
				global := &scope{span: span(block), symbols: ix.globals}
				ix.children(block, global)
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			ix.walk(n.NamedChild(i), sc, ex, exported)
		}

	case "expression_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			ix.walk(n.NamedChild(i), sc, ex, exported)
		}

	case "statement_block", "class_body":
		ix.children(n, newScope(span(n), sc))

	default:
		ix.children(n, sc)
	}
}

func (ix *indexer) children(n *sitter.Node, sc *scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		ix.walk(n.NamedChild(i), sc, nil, false)
	}
}

// function opens a scope for a callable's type parameters and a nested
// one for its body. Parameters are bound in the body scope only, so
// parameter decorators and annotations resolve in the enclosing scope.
func (ix *indexer) function(n *sitter.Node, sc *scope) {
	inner := newScope(span(n), sc)
	ix.typeParameters(n, inner)

	body := n.ChildByFieldName("body")
	scopeOfBody := inner
	if body != nil {
		scopeOfBody = newScope(span(body), inner)
		if params := n.ChildByFieldName("parameters"); params != nil {
			for i := 0; i < int(params.NamedChildCount()); i++ {
				p := params.NamedChild(i)
				if pattern := p.ChildByFieldName("pattern"); pattern != nil {
					ix.bindPattern(pattern, scopeOfBody, nil, false, p)
				}
			}
		} else if param := n.ChildByFieldName("parameter"); param != nil {
			ix.bindPattern(param, scopeOfBody, nil, false, param)
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if body != nil && child.StartByte() == body.StartByte() && child.EndByte() == body.EndByte() {
			if child.Type() == "statement_block" {
				ix.children(child, scopeOfBody)
			} else {
				ix.walk(child, scopeOfBody, nil, false)
			}
			continue
		}
		// Decorators and default values can still hold classes.
		ix.walk(child, inner, nil, false)
	}
}

func (ix *indexer) typeParameters(n *sitter.Node, sc *scope) {
	params := n.ChildByFieldName("type_parameters")
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		tp := params.NamedChild(i)
		if tp.Type() != "type_parameter" {
			continue
		}
		if name := tp.ChildByFieldName("name"); name != nil {
			sc.symbols[ix.text(name)] = &Symbol{
				Name:   ix.text(name),
				Kind:   KindTypeParameter,
				File:   ix.file,
				Offset: int(tp.StartByte()),
				mod:    ix.mod,
			}
		}
	}
}

// bindPattern declares every identifier bound by a name or destructuring
// pattern. doc is the node whose JSDoc applies.
func (ix *indexer) bindPattern(n *sitter.Node, sc *scope, ex *exportTarget, exported bool, doc *sitter.Node) {
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		sym := ix.symbol(ix.text(n), KindVariable, doc)
		sym.Offset = int(n.StartByte())
		ix.declare(sc, sym, ex, exported)
	case "pair_pattern":
		if value := n.ChildByFieldName("value"); value != nil {
			ix.bindPattern(value, sc, ex, exported, doc)
		}
	case "assignment_pattern", "object_assignment_pattern":
		if left := n.ChildByFieldName("left"); left != nil {
			ix.bindPattern(left, sc, ex, exported, doc)
		}
	case "object_pattern", "array_pattern", "rest_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			ix.bindPattern(n.NamedChild(i), sc, ex, exported, doc)
		}
	}
}

// moduleDeclaration handles `namespace A.B {}`, `module A {}` and ambient
// `declare module "x" {}` blocks.
func (ix *indexer) moduleDeclaration(n *sitter.Node, sc *scope, ex *exportTarget, exported bool) {
	name := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if name == nil {
		return
	}

	if name.Type() == "string" {
		amb := newModule(unquote(ix.text(name)), ix.file, span(n))
		ix.ambients = append(ix.ambients, amb)
		if body != nil {
			inner := &exportTarget{exports: amb.exports, stars: &amb.stars, all: true}
			for i := 0; i < int(body.NamedChildCount()); i++ {
				ix.walk(body.NamedChild(i), amb.root, inner, false)
			}
		}
		return
	}

	var segments []string
	for _, part := range strings.Split(ix.text(name), ".") {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}
	if len(segments) == 0 {
		return
	}

	ns := ix.declare(sc, ix.namespace(segments[0], n), ex, exported)
	for _, seg := range segments[1:] {
		if ns.Kind != KindNamespace {
			return
		}
		child := ns.Exports[seg]
		if child == nil || child.Kind != KindNamespace {
			child = ix.namespace(seg, n)
			ns.Exports[seg] = child
		}
		ns = child
	}
	if body == nil || ns.Kind != KindNamespace {
		return
	}
	inner := newScope(span(body), sc)
	for member, sym := range ns.Exports {
		inner.symbols[member] = sym
	}
	target := &exportTarget{exports: ns.Exports, all: ex != nil && ex.all}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		ix.walk(body.NamedChild(i), inner, target, false)
	}
}

func (ix *indexer) namespace(name string, n *sitter.Node) *Symbol {
	sym := ix.symbol(name, KindNamespace, n)
	sym.Exports = make(map[string]*Symbol)
	return sym
}

func (ix *indexer) alias(name, module, imported string, typeOnly bool, n *sitter.Node) *Symbol {
	return &Symbol{
		Name:     name,
		Kind:     KindAlias,
		File:     ix.file,
		Offset:   int(n.StartByte()),
		Module:   module,
		Imported: imported,
		TypeOnly: typeOnly,
		mod:      ix.mod,
	}
}

func (ix *indexer) importStatement(n *sitter.Node, sc *scope) {
	spec := ""
	if source := n.ChildByFieldName("source"); source != nil {
		spec = unquote(ix.text(source))
	}
	typeOnly := hasChild(n, "type")

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "import_clause":
			ix.importClause(child, sc, spec, typeOnly)
		case "import_require_clause":
			id := firstNamed(child)
			source := child.ChildByFieldName("source")
			if id != nil && source != nil {
				sc.symbols[ix.text(id)] = ix.alias(ix.text(id), unquote(ix.text(source)), "*", typeOnly, child)
			}
		}
	}
}

func (ix *indexer) importClause(n *sitter.Node, sc *scope, spec string, typeOnly bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "identifier":
			local := ix.text(child)
			sc.symbols[local] = ix.alias(local, spec, "default", typeOnly, child)
		case "namespace_import":
			if id := firstNamed(child); id != nil {
				local := ix.text(id)
				sc.symbols[local] = ix.alias(local, spec, "*", typeOnly, child)
			}
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				specifier := child.NamedChild(j)
				if specifier.Type() != "import_specifier" {
					continue
				}
				name := specifier.ChildByFieldName("name")
				if name == nil {
					continue
				}
				imported := unquote(ix.text(name))
				local := imported
				if alias := specifier.ChildByFieldName("alias"); alias != nil {
					local = ix.text(alias)
				}
				sc.symbols[local] = ix.alias(local, spec, imported, typeOnly || hasChild(specifier, "type"), specifier)
			}
		}
	}
}

func (ix *indexer) exportStatement(n *sitter.Node, sc *scope, ex *exportTarget) {
	isDefault := hasChild(n, "default")

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		ix.walk(decl, sc, ex, true)
		if isDefault && ex != nil {
			if name := decl.ChildByFieldName("name"); name != nil {
				ex.exports["default"] = sc.symbols[ix.text(name)]
			}
		}
		return
	}

	spec := ""
	if source := n.ChildByFieldName("source"); source != nil {
		spec = unquote(ix.text(source))
	}
	typeOnly := hasChild(n, "type")
	reexport := false

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "export_clause":
			reexport = true
			if ex == nil {
				continue
			}
			for j := 0; j < int(child.NamedChildCount()); j++ {
				specifier := child.NamedChild(j)
				if specifier.Type() != "export_specifier" {
					continue
				}
				name := specifier.ChildByFieldName("name")
				if name == nil {
					continue
				}
				local := unquote(ix.text(name))
				exported := local
				if alias := specifier.ChildByFieldName("alias"); alias != nil {
					exported = unquote(ix.text(alias))
				}
				ex.exports[exported] = ix.alias(exported, spec, local, typeOnly || hasChild(specifier, "type"), specifier)
			}
		case "namespace_export":
			reexport = true
			if id := firstNamed(child); id != nil && ex != nil {
				ex.exports[ix.text(id)] = ix.alias(ix.text(id), spec, "*", typeOnly, child)
			}
		}
	}
	if spec != "" && !reexport && hasChild(n, "*") {
		if ex != nil && ex.stars != nil {
			*ex.stars = append(*ex.stars, spec)
		}
		return
	}

	// export default <expr>; export = <expr>;
	value := n.ChildByFieldName("value")
	if value == nil && hasChild(n, "=") {
		value = lastNamed(n)
	}
	if value == nil {
		return
	}
	ix.walk(value, sc, nil, false)
	if ex == nil {
		return
	}
	switch value.Type() {
	case "identifier":
		ex.exports["default"] = ix.alias("default", "", ix.text(value), false, value)
	case "class", "function_expression", "function":
		if name := value.ChildByFieldName("name"); name != nil {
			ex.exports["default"] = ix.symbol(ix.text(name), kindOfExpression(value), n)
			return
		}
		ex.exports["default"] = ix.symbol("default", kindOfExpression(value), n)
	default:
		ex.exports["default"] = ix.symbol("default", KindVariable, n)
	}
}

func kindOfExpression(n *sitter.Node) Kind {
	if n.Type() == "class" {
		return KindClass
	}
	return KindFunction
}

// docOf collects the JSDoc comments directly preceding a declaration or
// the statements wrapping it.
func (ix *indexer) docOf(n *sitter.Node) string {
	w := n
	for {
		parent := w.Parent()
		if parent == nil {
			break
		}
		switch parent.Type() {
		case "export_statement", "ambient_declaration", "lexical_declaration",
			"variable_declaration", "expression_statement":
			w = parent
			continue
		}
		break
	}

	var docs []string
	for s := w.PrevNamedSibling(); s != nil && s.Type() == "comment"; s = s.PrevNamedSibling() {
		if text := ix.text(s); strings.HasPrefix(text, "/**") {
			docs = append([]string{text}, docs...)
		}
	}
	return strings.Join(docs, "\n")
}

func hasChild(n *sitter.Node, kind string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == kind {
			return true
		}
	}
	return false
}

func firstNamed(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() != "comment" {
			return c
		}
	}
	return nil
}

func lastNamed(n *sitter.Node) *sitter.Node {
	for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
		if c := n.NamedChild(i); c.Type() != "comment" {
			return c
		}
	}
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
