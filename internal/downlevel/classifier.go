// Package downlevel lowers decorators that are marked as reflectable
// annotations into static metadata members on the decorated class, while
// keeping every untouched token of the file at its original line and
// column.
package downlevel

import (
	"strings"

	"downlevel/internal/logging"
	"downlevel/internal/semantic"
	"downlevel/internal/syntax"
)

// Model is the read-only program view the engine consumes. Lookup resolves
// a possibly qualified name as seen from offset at in file to its
// originating declaration, following imports.
type Model interface {
	Lookup(file string, names []string, at int) (*semantic.Symbol, bool)
}

// Classifier decides which decorators are lowered.
type Classifier struct {
	model        Model
	isAnnotation semantic.Predicate
}

// NewClassifier returns a classifier that accepts decorators whose
// declaration satisfies isAnnotation.
func NewClassifier(model Model, isAnnotation semantic.Predicate) *Classifier {
	return &Classifier{model: model, isAnnotation: isAnnotation}
}

// IsEligible reports whether d is subject to lowering. Only references
// (@Foo) and calls of possibly qualified names (@Foo(...), @ns.Foo())
// qualify.
func (c *Classifier) IsEligible(f *syntax.File, d *syntax.Decorator) bool {
	if d.Form != syntax.FormReference && d.Form != syntax.FormCall {
		return false
	}
	if len(d.Path) == 0 || c.isAnnotation == nil {
		return false
	}
	sym, ok := c.model.Lookup(f.Name, d.Path, d.Span.Start)
	if !ok {
		logging.ClassifyDebug("%s: @%s has no declaration", f.Name, strings.Join(d.Path, "."))
		return false
	}
	eligible := c.isAnnotation(sym)
	logging.ClassifyDebug("%s: @%s -> %s %s (eligible=%v)", f.Name, strings.Join(d.Path, "."), sym.Kind, sym.Name, eligible)
	return eligible
}
