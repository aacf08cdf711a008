package semantic

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"downlevel/internal/logging"
	"downlevel/internal/syntax"
)

// maxAliasDepth bounds alias and star-export chains so cyclic re-exports
// terminate.
const maxAliasDepth = 16

// builtinValues are lib globals that exist at runtime.
var builtinValues = []string{
	"Array", "ArrayBuffer", "BigInt", "BigInt64Array", "BigUint64Array",
	"Boolean", "DataView", "Date", "Document", "Element", "Error", "Event",
	"EventTarget", "EvalError", "Float32Array", "Float64Array", "Function",
	"Headers", "HTMLElement", "Int16Array", "Int32Array", "Int8Array", "Intl",
	"JSON", "Map", "Math", "Node", "Number", "Object", "Promise", "Proxy",
	"RangeError", "ReferenceError", "Reflect", "RegExp", "Request", "Response",
	"Set", "String", "Symbol", "SyntaxError", "TypeError", "URIError", "URL",
	"Uint16Array", "Uint32Array", "Uint8Array", "Uint8ClampedArray", "WeakMap",
	"WeakRef", "WeakSet", "Window",
}

// Program indexes every file of one compilation. Files are added once,
// after which the index is only read; Lookup is safe for concurrent use.
type Program struct {
	mu       sync.RWMutex
	files    map[string]*module
	ambient  map[string]*module
	globals  map[string]*Symbol
	builtins map[string]*Symbol
}

// NewProgram returns an empty program seeded with the runtime globals.
func NewProgram() *Program {
	p := &Program{
		files:    make(map[string]*module),
		ambient:  make(map[string]*module),
		globals:  make(map[string]*Symbol),
		builtins: make(map[string]*Symbol, len(builtinValues)),
	}
	for _, name := range builtinValues {
		p.builtins[name] = &Symbol{Name: name, Kind: KindVariable}
	}
	return p
}

type module struct {
	name    string
	file    string
	dir     string
	root    *scope
	exports map[string]*Symbol
	stars   []string
	script  bool
	ns      *Symbol

	// contributions to program-wide tables, removed when the file is
	// re-added.
	globalNames  []string
	ambientNames []string
}

func newModule(name, file string, span syntax.Span) *module {
	return &module{
		name:    name,
		file:    file,
		dir:     path.Dir(file),
		root:    newScope(span, nil),
		exports: make(map[string]*Symbol),
	}
}

// namespace returns the module object bound by `import * as x`.
func (m *module) namespace() *Symbol {
	if m.ns == nil {
		m.ns = &Symbol{Name: m.name, Kind: KindNamespace, mod: m}
	}
	return m.ns
}

type scope struct {
	span     syntax.Span
	symbols  map[string]*Symbol
	parent   *scope
	children []*scope
}

func newScope(span syntax.Span, parent *scope) *scope {
	s := &scope{span: span, symbols: make(map[string]*Symbol), parent: parent}
	if parent != nil {
		parent.children = append(parent.children, s)
	}
	return s
}

func (s *scope) innermost(at int) *scope {
	cur := s
	for {
		var next *scope
		for _, c := range cur.children {
			if at >= c.span.Start && at < c.span.End {
				next = c
				break
			}
		}
		if next == nil {
			return cur
		}
		cur = next
	}
}

func (s *scope) lookup(name string, at int) *Symbol {
	for sc := s.innermost(at); sc != nil; sc = sc.parent {
		if sym := sc.symbols[name]; sym != nil {
			return sym
		}
	}
	return nil
}

func fileKey(name string) string {
	return path.Clean(filepath.ToSlash(name))
}

// AddFile indexes a parsed file. Adding a file under a name already in the
// program replaces the earlier version.
func (p *Program) AddFile(f *syntax.File) error {
	root := f.Root()
	if root == nil {
		return fmt.Errorf("semantic: %s has no syntax tree", f.Name)
	}
	key := fileKey(f.Name)
	ix := &indexer{
		file:    key,
		src:     f.Text,
		mod:     newModule(key, key, syntax.Span{Start: 0, End: len(f.Text) + 1}),
		globals: make(map[string]*Symbol),
	}
	ix.index(root)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(key)

	m := ix.mod
	p.files[key] = m
	for name, sym := range ix.globals {
		p.globals[name] = sym
		m.globalNames = append(m.globalNames, name)
	}
	if m.script {
		for name, sym := range m.root.symbols {
			p.globals[name] = sym
			m.globalNames = append(m.globalNames, name)
		}
	}
	for _, amb := range ix.ambients {
		if old := p.ambient[amb.name]; old != nil {
			mergeModules(old, amb)
		} else {
			p.ambient[amb.name] = amb
		}
		m.ambientNames = append(m.ambientNames, amb.name)
	}

	logging.SemanticDebug("indexed %s: %d top-level names, %d exports, %d ambient modules, script=%v",
		key, len(m.root.symbols), len(m.exports), len(ix.ambients), m.script)
	return nil
}

// RemoveFile drops a file and everything it declared globally.
func (p *Program) RemoveFile(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(fileKey(name))
}

func (p *Program) removeLocked(key string) {
	m := p.files[key]
	if m == nil {
		return
	}
	for _, name := range m.globalNames {
		if sym := p.globals[name]; sym != nil && sym.File == key {
			delete(p.globals, name)
		}
	}
	for _, name := range m.ambientNames {
		if amb := p.ambient[name]; amb != nil && amb.file == key {
			delete(p.ambient, name)
		}
	}
	delete(p.files, key)
}

// mergeModules augments an ambient module declared in more than one place.
func mergeModules(dst, src *module) {
	for name, sym := range src.root.symbols {
		if old := dst.root.symbols[name]; old != nil {
			sym = merge(old, sym)
		}
		dst.root.symbols[name] = sym
	}
	for name, sym := range src.exports {
		dst.exports[name] = sym
	}
	dst.stars = append(dst.stars, src.stars...)
}

// Files lists the indexed file names in sorted order.
func (p *Program) Files() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.files))
	for name := range p.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves a possibly qualified name (["ns", "Foo"]) as seen from
// offset at in file, following imports and re-exports to the declaration.
func (p *Program) Lookup(file string, names []string, at int) (*Symbol, bool) {
	if len(names) == 0 {
		return nil, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var sym *Symbol
	if m := p.files[fileKey(file)]; m != nil {
		sym = m.root.lookup(names[0], at)
	}
	if sym == nil {
		sym = p.globals[names[0]]
	}
	if sym == nil {
		sym = p.builtins[names[0]]
	}
	if sym == nil {
		return nil, false
	}

	sym, typeOnly := p.follow(sym)
	for _, name := range names[1:] {
		if sym == nil {
			return nil, false
		}
		var t bool
		sym, t = p.follow(p.member(sym, name))
		typeOnly = typeOnly || t
	}
	if sym == nil {
		return nil, false
	}
	if typeOnly && !sym.TypeOnly {
		c := *sym
		c.TypeOnly = true
		sym = &c
	}
	return sym, true
}

// follow resolves alias chains and reports whether any link was type-only.
func (p *Program) follow(s *Symbol) (*Symbol, bool) {
	typeOnly := false
	for depth := 0; s != nil && s.Kind == KindAlias; depth++ {
		if depth >= maxAliasDepth {
			logging.SemanticDebug("alias chain for %s exceeds %d links", s.Name, maxAliasDepth)
			return nil, typeOnly
		}
		typeOnly = typeOnly || s.TypeOnly
		s = p.target(s, depth)
	}
	return s, typeOnly
}

func (p *Program) target(alias *Symbol, depth int) *Symbol {
	owner := alias.mod
	if owner == nil {
		return nil
	}
	if alias.Module == "" {
		return owner.root.symbols[alias.Imported]
	}
	m := p.resolveModule(owner, alias.Module)
	if m == nil {
		return &Symbol{
			Name:     alias.Name,
			Kind:     KindUnresolved,
			File:     alias.File,
			Offset:   alias.Offset,
			Module:   alias.Module,
			Imported: alias.Imported,
		}
	}
	if alias.Imported == "*" {
		return m.namespace()
	}
	return p.export(m, alias.Imported, depth)
}

func (p *Program) export(m *module, name string, depth int) *Symbol {
	if s, ok := m.exports[name]; ok {
		return s
	}
	if name == "default" || depth >= maxAliasDepth {
		return nil
	}
	var external string
	for _, star := range m.stars {
		sm := p.resolveModule(m, star)
		if sm == nil {
			if external == "" {
				external = star
			}
			continue
		}
		if sm == m {
			continue
		}
		if s := p.export(sm, name, depth+1); s != nil {
			return s
		}
	}
	if external != "" {
		return &Symbol{Name: name, Kind: KindUnresolved, File: m.name, Module: external, Imported: name}
	}
	return nil
}

func (p *Program) member(s *Symbol, name string) *Symbol {
	switch {
	case s.Kind == KindNamespace && s.mod != nil && s.Exports == nil:
		return p.export(s.mod, name, 0)
	case s.Kind == KindUnresolved:
		imported := name
		if s.Imported != "*" && s.Imported != "" {
			imported = s.Imported + "." + name
		}
		return &Symbol{Name: name, Kind: KindUnresolved, File: s.File, Offset: s.Offset, Module: s.Module, Imported: imported}
	case s.Kind == KindEnum:
		return &Symbol{Name: name, Kind: KindVariable, File: s.File, Offset: s.Offset}
	case s.Exports != nil:
		return s.Exports[name]
	}
	return nil
}

var moduleSuffixes = []string{"", ".ts", ".tsx", ".d.ts", "/index.ts", "/index.tsx", "/index.d.ts"}

// resolveModule maps an import specifier to a program module: relative
// specifiers to files, everything else to `declare module` blocks.
func (p *Program) resolveModule(from *module, spec string) *module {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".." || path.IsAbs(spec) {
		base := spec
		if !path.IsAbs(spec) {
			base = path.Join(from.dir, spec)
		}
		base = strings.TrimSuffix(base, ".js")
		for _, suffix := range moduleSuffixes {
			if m := p.files[base+suffix]; m != nil {
				return m
			}
		}
		return nil
	}
	return p.ambient[spec]
}
