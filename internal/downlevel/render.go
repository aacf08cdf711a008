package downlevel

import (
	"strings"
)

const (
	decoratorInvocationType = `{type: Function, args?: any[]}`
	decoratorsType          = decoratorInvocationType + `[]`
	ctorParametersType      = `() => ({type: any, decorators?: ` + decoratorsType + `}|null)[]`
	propDecoratorsType      = `{[key: string]: ` + decoratorsType + `}`
)

// Format renders m as class members. Member lines start with indent, list
// entries with indent+unit, and every line ends in a newline. typed adds
// TypeScript annotations to the members.
func (m *ClassMetadata) Format(indent, unit string, typed bool) string {
	var b strings.Builder
	line := func(depth int, s string) {
		b.WriteString(indent)
		if depth > 0 {
			b.WriteString(unit)
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}
	annotate := func(t string) string {
		if !typed {
			return ""
		}
		return ": " + t
	}

	if len(m.Decorators) > 0 {
		line(0, "static decorators"+annotate(decoratorsType)+" = [")
		for _, e := range m.Decorators {
			line(1, formatEntry(e)+",")
		}
		line(0, "];")
	}

	if m.HasCtorParams {
		line(0, "/** @nocollapse */")
		line(0, "static ctorParameters"+annotate(ctorParametersType)+" = () => [")
		for _, p := range m.CtorParams {
			line(1, formatParam(p)+",")
		}
		line(0, "];")
	}

	if len(m.Props) > 0 {
		line(0, "static propDecorators"+annotate(propDecoratorsType)+" = {")
		for _, p := range m.Props {
			var entries strings.Builder
			for _, e := range p.Decorators {
				entries.WriteString(formatEntry(e))
				entries.WriteByte(',')
			}
			line(1, quoteKey(p.Name)+": ["+entries.String()+"],")
		}
		line(0, "};")
	}
	return b.String()
}

// formatEntry renders `{ type: X }` or `{ type: X, args: [a, b, ] }`.
func formatEntry(e Entry) string {
	if len(e.Args) == 0 {
		return "{ type: " + e.Type + " }"
	}
	var b strings.Builder
	b.WriteString("{ type: ")
	b.WriteString(e.Type)
	b.WriteString(", args: [")
	for _, a := range e.Args {
		b.WriteString(a)
		b.WriteString(", ")
	}
	b.WriteString("] }")
	return b.String()
}

func formatParam(p *ParamMeta) string {
	if p == nil {
		return "null"
	}
	typ := p.Type
	if typ == "" {
		typ = "undefined"
	}
	if len(p.Decorators) == 0 {
		return "{type: " + typ + ", }"
	}
	var b strings.Builder
	b.WriteString("{type: ")
	b.WriteString(typ)
	b.WriteString(", decorators: [")
	for _, e := range p.Decorators {
		b.WriteString(formatEntry(e))
		b.WriteString(", ")
	}
	b.WriteString("]}")
	return b.String()
}

// quoteKey double-quotes a member name. String-literal names arrive with
// their escapes as written, so existing escapes are kept and only bare
// double quotes and line breaks are escaped.
func quoteKey(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 2)
	b.WriteByte('"')
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch c {
		case '\\':
			b.WriteByte(c)
			if i+1 < len(name) {
				i++
				b.WriteByte(name[i])
			}
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
