// Package semantic is a read-only program index over parsed TypeScript
// files. It answers the three questions the downlevel engine asks of a
// type-checked program: which declaration a name refers to, whether that
// declaration carries a runtime value, and what its JSDoc says.
package semantic

// Kind classifies a declaration.
type Kind int

const (
	KindUnknown Kind = iota
	KindVariable
	KindFunction
	KindClass
	KindEnum
	KindInterface
	KindTypeAlias
	KindTypeParameter
	KindNamespace
	// KindAlias is an import or re-export that has not been followed yet.
	// Lookup never returns one.
	KindAlias
	// KindUnresolved is an import from a module outside the program.
	KindUnresolved
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindVariable:      "variable",
	KindFunction:      "function",
	KindClass:         "class",
	KindEnum:          "enum",
	KindInterface:     "interface",
	KindTypeAlias:     "type",
	KindTypeParameter: "type-parameter",
	KindNamespace:     "namespace",
	KindAlias:         "alias",
	KindUnresolved:    "unresolved",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// HasValue reports whether declarations of this kind exist at runtime.
// Imports from modules outside the program are assumed to be values.
func (k Kind) HasValue() bool {
	switch k {
	case KindVariable, KindFunction, KindClass, KindEnum, KindNamespace, KindUnresolved:
		return true
	}
	return false
}

// Symbol is one declaration.
type Symbol struct {
	Name string
	Kind Kind
	// Doc holds the JSDoc comments attached to the declaration.
	Doc    string
	File   string
	Offset int

	// Module and Imported describe aliases and unresolved imports: the
	// module specifier and the exported name ("default", "*" or a name).
	// Module is empty for a local export of a name in the same file.
	Module   string
	Imported string
	// TypeOnly marks `import type` bindings, which never carry values.
	TypeOnly bool

	// Exports lists the exported members of a namespace.
	Exports map[string]*Symbol

	mod *module
}

// IsValue reports whether the symbol can be referenced in an expression.
func (s *Symbol) IsValue() bool {
	return s != nil && !s.TypeOnly && s.Kind.HasValue()
}

// merge folds a redeclaration of the same name into s. TypeScript lets an
// interface and a value share a name; the value side wins and documentation
// from both declarations is kept.
func merge(existing, next *Symbol) *Symbol {
	if existing.Kind == KindNamespace && next.Kind == KindNamespace {
		for name, sym := range next.Exports {
			if existing.Exports == nil {
				existing.Exports = make(map[string]*Symbol)
			}
			existing.Exports[name] = sym
		}
		existing.Doc = joinDoc(existing.Doc, next.Doc)
		return existing
	}
	if !existing.Kind.HasValue() && next.Kind.HasValue() {
		next.Doc = joinDoc(existing.Doc, next.Doc)
		return next
	}
	existing.Doc = joinDoc(existing.Doc, next.Doc)
	return existing
}

func joinDoc(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}
