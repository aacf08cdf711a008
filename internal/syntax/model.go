// Package syntax builds the class-level syntax model the downlevel engine
// works on. Spans are byte offsets into the original text; nothing in the
// model is mutated after Parse returns.
package syntax

import (
	"downlevel/internal/sourcemap"

	sitter "github.com/smacker/go-tree-sitter"
)

// Span is a half-open byte range [Start, End).
type Span struct {
	Start int
	End   int
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool { return o.Start >= s.Start && o.End <= s.End }

// Target is the closed set of declaration kinds a decorator can attach to.
type Target int

const (
	TargetClass Target = iota
	TargetParameter
	TargetMethod
	TargetProperty
	TargetAccessor
)

func (t Target) String() string {
	switch t {
	case TargetClass:
		return "class"
	case TargetParameter:
		return "parameter"
	case TargetMethod:
		return "method"
	case TargetProperty:
		return "property"
	case TargetAccessor:
		return "accessor"
	default:
		return "unknown"
	}
}

// Form is the shape of a decorator expression.
type Form int

const (
	// FormOther is any expression the engine does not lower.
	FormOther Form = iota
	// FormReference is a bare name: @Foo. A dotted @ns.Foo is FormOther.
	FormReference
	// FormCall is a call of a name: @Foo(a, b), @Foo<T>(), @ns.Foo().
	FormCall
)

// Decorator is one decorator use-site.
type Decorator struct {
	Span   Span
	Target Target
	Form   Form
	// Path holds the referenced name segments, e.g. ["ns", "Foo"].
	Path []string
	// Callee is the referenced name without type arguments or call.
	Callee Span
	// Args are the call arguments in order. Empty for references.
	Args []Span
}

// NameKind classifies a member name.
type NameKind int

const (
	NameIdentifier NameKind = iota
	NameString
	NameNumber
	NamePrivate
	NameComputed
)

// Member is a method, property or accessor of a class body.
type Member struct {
	Kind     Target
	Name     string
	NameKind NameKind
	Static   bool
	// Span starts at the member's first decorator, if any.
	Span       Span
	Decorators []*Decorator
}

// PatternKind classifies a parameter binding.
type PatternKind int

const (
	PatternIdentifier PatternKind = iota
	PatternDestructured
	PatternRest
	PatternThis
)

// Parameter is a constructor parameter.
type Parameter struct {
	Span       Span
	Name       string
	Pattern    PatternKind
	Optional   bool
	HasDefault bool
	Decorators []*Decorator
	// Type is nil when the parameter has no annotation.
	Type *TypeRef
}

// TypeKind classifies a type annotation.
type TypeKind int

const (
	TypeOther TypeKind = iota
	TypeReference
	TypePredefined
	TypeUnion
	TypeIntersection
)

// TypeRef is a declared parameter type.
type TypeRef struct {
	Kind TypeKind
	Span Span
	// Name is the referenced name without type arguments (TypeReference).
	Name Span
	Path []string
	// Generic is set for instantiations such as Promise<string>.
	Generic bool
}

// Constructor is the implementation signature of a class constructor.
type Constructor struct {
	Span   Span
	Params []*Parameter
}

// Class is a class declaration or class expression.
type Class struct {
	Name string
	// Span covers the class including decorators written before it.
	Span Span
	// Body covers the braces of the class body.
	Body Span
	// FirstMember is the offset of the first body element or -1.
	FirstMember int
	Decorators  []*Decorator
	Ctor        *Constructor
	Members     []*Member
}

// File is a parsed source file.
type File struct {
	Name string
	Text []byte
	// Classes lists every class in the file, innermost first, so a class
	// always comes after the classes nested inside it.
	Classes []*Class
	// HasErrors reports whether the parser recovered from syntax errors.
	HasErrors bool

	lines *sourcemap.LineIndex
	tree  *sitter.Tree
}

// Lines returns the file's line index.
func (f *File) Lines() *sourcemap.LineIndex {
	if f.lines == nil {
		f.lines = sourcemap.NewLineIndex(f.Text)
	}
	return f.lines
}

// Root returns the tree-sitter root node. Valid until Close.
func (f *File) Root() *sitter.Node {
	if f.tree == nil {
		return nil
	}
	return f.tree.RootNode()
}

// Close releases the underlying tree.
func (f *File) Close() {
	if f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
}
