package downlevel

import (
	"bytes"
	"strings"

	"downlevel/internal/logging"
	"downlevel/internal/semantic"
	"downlevel/internal/sourcemap"
	"downlevel/internal/syntax"
)

// Options tunes the emitted metadata.
type Options struct {
	// Typed adds TypeScript type annotations to the synthesized members.
	Typed bool
}

// Result is the outcome of transforming one file.
type Result struct {
	File        string
	Output      []byte
	Changed     bool
	Diagnostics []Diagnostic
	// Deltas lists one entry per blank or insert edit, in source order.
	Deltas    []sourcemap.Delta
	Positions *sourcemap.PositionMap
	// Lowered counts the decorators moved into metadata.
	Lowered int
}

// Transformer lowers eligible decorators file by file. It holds no per-file
// state and may be shared by concurrent workers as long as the Model is
// safe for concurrent reads.
type Transformer struct {
	classifier *Classifier
	resolver   *Resolver
	opts       Options
}

// New returns a Transformer that lowers decorators whose declaration
// satisfies isAnnotation.
func New(model Model, isAnnotation semantic.Predicate, opts Options) *Transformer {
	return &Transformer{
		classifier: NewClassifier(model, isAnnotation),
		resolver:   NewResolver(model),
		opts:       opts,
	}
}

// Transform rewrites f. It never fails: structural problems are reported as
// diagnostics and the affected decorators are left in place.
func (t *Transformer) Transform(f *syntax.File) *Result {
	timer := logging.StartTimer(logging.CategoryRewrite, "transform "+f.Name)
	defer timer.Stop()

	edits := newEditList(f.Text)
	rep := NewReporter(f)
	lowered := 0
	for _, c := range f.Classes {
		lowered += t.visitClass(f, c, edits, rep)
	}

	out, deltas := edits.apply()
	res := &Result{
		File:        f.Name,
		Output:      out,
		Changed:     len(deltas) > 0,
		Diagnostics: rep.Diagnostics(),
		Deltas:      deltas,
		Positions:   sourcemap.NewPositionMap(len(f.Text), deltas),
		Lowered:     lowered,
	}
	if res.Changed {
		logging.RewriteDebug("%s: lowered %d decorators in %d edits", f.Name, lowered, len(deltas))
	}
	return res
}

// visitClass records the edits for one class and returns how many
// decorators it lowered. Classes arrive innermost first, so decorator
// arguments that contain rewritten classes are copied in their final form.
func (t *Transformer) visitClass(f *syntax.File, c *syntax.Class, edits *editList, rep *Reporter) int {
	at, ok := insertionPoint(f.Text, c)
	if !ok {
		logging.RewriteWarn("%s: class %q has no closing brace; decorators left in place", f.Name, c.Name)
		return 0
	}

	meta := &ClassMetadata{}
	var spans []syntax.Span

	for _, d := range c.Decorators {
		if t.classifier.IsEligible(f, d) {
			meta.Decorators = append(meta.Decorators, t.entry(f, d, edits))
			spans = append(spans, d.Span)
		}
	}

	var params [][]Entry
	paramDecorated := false
	if c.Ctor != nil {
		params = make([][]Entry, len(c.Ctor.Params))
		for i, p := range c.Ctor.Params {
			for _, d := range p.Decorators {
				if t.classifier.IsEligible(f, d) {
					params[i] = append(params[i], t.entry(f, d, edits))
					spans = append(spans, d.Span)
					paramDecorated = true
				}
			}
		}
	}

	if len(meta.Decorators) > 0 || paramDecorated {
		meta.HasCtorParams = true
		if c.Ctor != nil {
			meta.CtorParams = make([]*ParamMeta, len(c.Ctor.Params))
			for i, p := range c.Ctor.Params {
				typ, resolved := t.resolver.Resolve(f, p)
				if !resolved && len(params[i]) == 0 {
					continue
				}
				meta.CtorParams[i] = &ParamMeta{Type: typ, Decorators: params[i]}
			}
		}
	}

	for _, m := range c.Members {
		var entries []Entry
		var memberSpans []syntax.Span
		for _, d := range m.Decorators {
			if t.classifier.IsEligible(f, d) {
				entries = append(entries, t.entry(f, d, edits))
				memberSpans = append(memberSpans, d.Span)
			}
		}
		if len(entries) == 0 {
			continue
		}
		if m.NameKind == syntax.NameComputed {
			d := rep.Report(KindUnsupportedMemberName, m.Span.Start)
			logging.RewriteDebug("%s", d)
			continue
		}
		meta.AddProp(m.Name, entries...)
		spans = append(spans, memberSpans...)
	}

	if meta.Empty() {
		return 0
	}
	// A decorator must not end up both in the source and in the metadata.
	saved := edits.snapshot()
	for _, s := range spans {
		if err := edits.blank(s); err != nil {
			edits.restore(saved)
			logging.RewriteWarn("%s: class %q left in place: %v", f.Name, c.Name, err)
			return 0
		}
	}
	indent, unit, inline := layout(f.Text, c)
	block := meta.Format(indent, unit, t.opts.Typed)
	if inline {
		block = "\n" + block + lineIndent(f.Text, at)
	}
	edits.insert(at, block)

	logging.RewriteDebug("%s: class %s gets %d decorators, ctorParameters=%v, %d prop keys",
		f.Name, c.Name, len(meta.Decorators), meta.HasCtorParams, len(meta.Props))
	return meta.Lowered()
}

func (t *Transformer) entry(f *syntax.File, d *syntax.Decorator, edits *editList) Entry {
	e := Entry{Type: strings.Join(d.Path, ".")}
	if d.Form == syntax.FormCall {
		for _, a := range d.Args {
			e.Args = append(e.Args, edits.render(a))
		}
	}
	return e
}

// insertionPoint returns where the metadata block goes: the start of the
// closing brace's line when the brace is alone on it, else the brace.
func insertionPoint(src []byte, c *syntax.Class) (int, bool) {
	brace := c.Body.End - 1
	if brace <= c.Body.Start || brace >= len(src) || src[brace] != '}' {
		return 0, false
	}
	start := lineStartOf(src, brace)
	if start > c.Body.Start && isBlank(src[start:brace]) {
		return start, true
	}
	return brace, true
}

// layout picks the member indentation for the block and whether it is
// spliced into a line instead of occupying lines of its own.
func layout(src []byte, c *syntax.Class) (indent, unit string, inline bool) {
	brace := c.Body.End - 1
	braceLine := lineStartOf(src, brace)
	inline = !(braceLine > c.Body.Start && isBlank(src[braceLine:brace]))
	base := lineIndent(src, brace)

	unit = "  "
	if c.FirstMember >= 0 {
		start := lineStartOf(src, c.FirstMember)
		if start > c.Body.Start && isBlank(src[start:c.FirstMember]) {
			indent = string(src[start:c.FirstMember])
		}
	}
	if strings.Contains(indent+base, "\t") {
		unit = "\t"
	}
	if indent == "" {
		indent = base + unit
	}
	return indent, unit, inline
}

func lineStartOf(src []byte, off int) int {
	return bytes.LastIndexByte(src[:off], '\n') + 1
}

// lineIndent returns the leading whitespace of the line containing off.
func lineIndent(src []byte, off int) string {
	start := lineStartOf(src, off)
	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return string(src[start:end])
}

func isBlank(b []byte) bool {
	return len(bytes.Trim(b, " \t")) == 0
}
