package semantic

import (
	"regexp"
)

// Predicate decides whether a resolved declaration is a reflectable
// annotation. The downlevel engine takes one as a plug-in so the marker
// convention is configurable.
type Predicate func(*Symbol) bool

// DocTag matches declarations whose JSDoc carries @tag as a whole tag.
// DocTag("Annotation") accepts `/** @Annotation */` but not
// `/** @AnnotationLike */` or a plain `// @Annotation` comment.
func DocTag(tag string) Predicate {
	re := regexp.MustCompile(`(?:^|[^\w@])@` + regexp.QuoteMeta(tag) + `(?:[^\w]|$)`)
	return func(s *Symbol) bool {
		return s != nil && s.Doc != "" && re.MatchString(s.Doc)
	}
}

// ImportedAs matches bindings imported from a module outside the program,
// which carry no JSDoc to inspect. With no names every export of module
// matches.
func ImportedAs(module string, names ...string) Predicate {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(s *Symbol) bool {
		if s == nil || s.Kind != KindUnresolved || s.Module != module {
			return false
		}
		return len(set) == 0 || set[s.Imported]
	}
}

// AnyOf matches when at least one predicate matches.
func AnyOf(preds ...Predicate) Predicate {
	return func(s *Symbol) bool {
		for _, p := range preds {
			if p != nil && p(s) {
				return true
			}
		}
		return false
	}
}
