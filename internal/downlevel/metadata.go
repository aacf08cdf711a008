package downlevel

// Entry is one lowered decorator: its callee and, for calls with at least
// one argument, the argument source text.
type Entry struct {
	Type string
	Args []string
}

// ParamMeta describes one constructor parameter. An empty Type is
// rendered as undefined. A nil *ParamMeta is rendered as null.
type ParamMeta struct {
	Type       string
	Decorators []Entry
}

// PropDecorators holds the decorators of all members sharing a name.
type PropDecorators struct {
	Name       string
	Decorators []Entry
}

// ClassMetadata is the set of static members synthesized for one class.
type ClassMetadata struct {
	Decorators []Entry
	// HasCtorParams is set when ctorParameters is emitted, even if the
	// class has no constructor and CtorParams is empty.
	HasCtorParams bool
	CtorParams    []*ParamMeta
	Props         []PropDecorators
}

// Empty reports whether nothing would be emitted.
func (m *ClassMetadata) Empty() bool {
	return len(m.Decorators) == 0 && !m.HasCtorParams && len(m.Props) == 0
}

// AddProp appends entries under name, keeping the first-encounter order of
// names.
func (m *ClassMetadata) AddProp(name string, entries ...Entry) {
	for i := range m.Props {
		if m.Props[i].Name == name {
			m.Props[i].Decorators = append(m.Props[i].Decorators, entries...)
			return
		}
	}
	m.Props = append(m.Props, PropDecorators{Name: name, Decorators: entries})
}

// Lowered counts the decorators captured in m.
func (m *ClassMetadata) Lowered() int {
	n := len(m.Decorators)
	for _, p := range m.CtorParams {
		if p != nil {
			n += len(p.Decorators)
		}
	}
	for _, p := range m.Props {
		n += len(p.Decorators)
	}
	return n
}
