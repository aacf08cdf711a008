package downlevel

import (
	"testing"

	"downlevel/internal/semantic"
	"downlevel/internal/syntax"

	"github.com/stretchr/testify/assert"
)

// fakeModel resolves dotted names from a fixed table.
type fakeModel map[string]*semantic.Symbol

func (m fakeModel) Lookup(_ string, names []string, _ int) (*semantic.Symbol, bool) {
	key := names[0]
	for _, n := range names[1:] {
		key += "." + n
	}
	sym, ok := m[key]
	return sym, ok
}

func TestClassifier_IsEligible(t *testing.T) {
	model := fakeModel{
		"Marked":     {Name: "Marked", Kind: semantic.KindVariable, Doc: "/** @Annotation */"},
		"Plain":      {Name: "Plain", Kind: semantic.KindVariable},
		"ns.Marked":  {Name: "Marked", Kind: semantic.KindFunction, Doc: "/** @Annotation */"},
		"Component":  {Name: "Component", Kind: semantic.KindUnresolved, Module: "@angular/core", Imported: "Component"},
		"Injectable": {Name: "Injectable", Kind: semantic.KindUnresolved, Module: "other", Imported: "Injectable"},
	}
	c := NewClassifier(model, semantic.AnyOf(
		semantic.DocTag("Annotation"),
		semantic.ImportedAs("@angular/core", "Component"),
	))
	f := &syntax.File{Name: "a.ts"}

	cases := []struct {
		name string
		d    syntax.Decorator
		want bool
	}{
		{"reference", syntax.Decorator{Form: syntax.FormReference, Path: []string{"Marked"}}, true},
		{"call", syntax.Decorator{Form: syntax.FormCall, Path: []string{"Marked"}}, true},
		{"qualified call", syntax.Decorator{Form: syntax.FormCall, Path: []string{"ns", "Marked"}}, true},
		{"qualified reference", syntax.Decorator{Form: syntax.FormOther, Path: []string{"ns", "Marked"}}, false},
		{"unmarked", syntax.Decorator{Form: syntax.FormReference, Path: []string{"Plain"}}, false},
		{"undeclared", syntax.Decorator{Form: syntax.FormReference, Path: []string{"Missing"}}, false},
		{"other shape", syntax.Decorator{Form: syntax.FormOther, Path: []string{"Marked"}}, false},
		{"external annotation", syntax.Decorator{Form: syntax.FormCall, Path: []string{"Component"}}, true},
		{"external other", syntax.Decorator{Form: syntax.FormCall, Path: []string{"Injectable"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.IsEligible(f, &tc.d))
		})
	}
}

func TestClassifier_NilPredicate(t *testing.T) {
	c := NewClassifier(fakeModel{"A": {Kind: semantic.KindVariable}}, nil)
	d := &syntax.Decorator{Form: syntax.FormReference, Path: []string{"A"}}
	assert.False(t, c.IsEligible(&syntax.File{Name: "a.ts"}, d))
}

func TestResolver_Resolve(t *testing.T) {
	model := fakeModel{
		"Svc":      {Kind: semantic.KindClass},
		"Iface":    {Kind: semantic.KindInterface},
		"AnEnum":   {Kind: semantic.KindEnum},
		"bar.Svc":  {Kind: semantic.KindClass},
		"Promise":  {Kind: semantic.KindVariable},
		"T":        {Kind: semantic.KindTypeParameter},
		"TypeOnly": {Kind: semantic.KindClass, TypeOnly: true},
		"External": {Kind: semantic.KindUnresolved},
	}
	r := NewResolver(model)
	f := &syntax.File{Name: "a.ts"}
	ref := func(generic bool, path ...string) *syntax.TypeRef {
		return &syntax.TypeRef{Kind: syntax.TypeReference, Path: path, Generic: generic}
	}

	cases := []struct {
		name string
		typ  *syntax.TypeRef
		want string
		ok   bool
	}{
		{"no annotation", nil, "", false},
		{"class", ref(false, "Svc"), "Svc", true},
		{"enum", ref(false, "AnEnum"), "AnEnum", true},
		{"qualified", ref(false, "bar", "Svc"), "bar.Svc", true},
		{"generic", ref(true, "Promise"), "Promise", true},
		{"interface", ref(false, "Iface"), "", false},
		{"type parameter", ref(false, "T"), "", false},
		{"import type", ref(false, "TypeOnly"), "", false},
		{"external", ref(false, "External"), "External", true},
		{"undeclared", ref(false, "Nope"), "", false},
		{"predefined", &syntax.TypeRef{Kind: syntax.TypePredefined}, "", false},
		{"union", &syntax.TypeRef{Kind: syntax.TypeUnion}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := r.Resolve(f, &syntax.Parameter{Type: tc.typ})
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
