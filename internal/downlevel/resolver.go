package downlevel

import (
	"strings"

	"downlevel/internal/syntax"
)

// Resolver turns constructor parameter annotations into value expressions.
type Resolver struct {
	model Model
}

// NewResolver returns a resolver backed by model.
func NewResolver(model Model) *Resolver {
	return &Resolver{model: model}
}

// Resolve returns the runtime expression for p's declared type. ok is false
// when the type has no runtime value: no annotation, a type-only
// declaration, or a type that is not a plain (possibly generic or
// qualified) reference. Generic instantiations resolve to the generic
// itself.
func (r *Resolver) Resolve(f *syntax.File, p *syntax.Parameter) (string, bool) {
	t := p.Type
	if t == nil || t.Kind != syntax.TypeReference || len(t.Path) == 0 {
		return "", false
	}
	sym, ok := r.model.Lookup(f.Name, t.Path, t.Name.Start)
	if !ok || !sym.IsValue() {
		return "", false
	}
	return strings.Join(t.Path, "."), true
}
