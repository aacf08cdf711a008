package semantic

import (
	"context"
	"strings"
	"testing"

	"downlevel/internal/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, files map[string]string) *Program {
	t.Helper()
	p := NewProgram()
	for name, src := range files {
		f, err := syntax.Parse(context.Background(), name, []byte(src))
		require.NoError(t, err)
		require.NoError(t, p.AddFile(f))
		f.Close()
	}
	return p
}

func at(src, marker string) int {
	return strings.Index(src, marker)
}

const barDTS = `declare module "bar" {
  export class BarService {}
  type FakeDecorator = any;
}`

func TestLookup_LocalDeclarations(t *testing.T) {
	src := `import {FakeDecorator} from 'bar';
/** @Annotation */ let Test1: FakeDecorator;
/** @Annotation */ function Test2(t: any) {}
let plain: any;
enum AnEnum { ONE, TWO }
interface Iface {}
type Alias = string;
abstract class AbstractService {}
class Foo<T> {
  constructor(x: T) {}
}
`
	p := build(t, map[string]string{"testcase.ts": src, "bar.d.ts": barDTS})
	end := len(src) - 1

	cases := []struct {
		name  string
		kind  Kind
		value bool
	}{
		{"Test1", KindVariable, true},
		{"Test2", KindFunction, true},
		{"AnEnum", KindEnum, true},
		{"Iface", KindInterface, false},
		{"Alias", KindTypeAlias, false},
		{"AbstractService", KindClass, true},
		{"Promise", KindVariable, true},
	}
	for _, tc := range cases {
		sym, ok := p.Lookup("testcase.ts", []string{tc.name}, end)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.kind, sym.Kind, tc.name)
		assert.Equal(t, tc.value, sym.IsValue(), tc.name)
	}

	tp, ok := p.Lookup("testcase.ts", []string{"T"}, at(src, "x: T"))
	require.True(t, ok)
	assert.Equal(t, KindTypeParameter, tp.Kind)
	_, ok = p.Lookup("testcase.ts", []string{"T"}, end)
	assert.False(t, ok, "type parameter must not leak out of its class")

	_, ok = p.Lookup("testcase.ts", []string{"Nope"}, end)
	assert.False(t, ok)
}

func TestLookup_DocComments(t *testing.T) {
	src := `/** @Annotation */ let Test1: any;
/** @Annotation */ export let Test2: any;
/**
 * Multi-line.
 * @Annotation
 */
export function Test3() {}
// @Annotation
let NotDoc: any;
let Undocumented: any;
`
	p := build(t, map[string]string{"a.ts": src})
	annotation := DocTag("Annotation")

	for name, want := range map[string]bool{
		"Test1":        true,
		"Test2":        true,
		"Test3":        true,
		"NotDoc":       false,
		"Undocumented": false,
	} {
		sym, ok := p.Lookup("a.ts", []string{name}, len(src))
		require.True(t, ok, name)
		assert.Equal(t, want, annotation(sym), name)
	}
}

func TestLookup_FollowsImports(t *testing.T) {
	decorators := `/** @Annotation */ export let Inject: any;
export class Service {}
export interface Shape {}
export default class Main {}
`
	barrel := `export * from './decorators';
export {Service as Renamed} from './decorators';
export * as all from './decorators';
`
	main := `import {Inject, Shape} from './lib/decorators';
import Main from './lib/decorators';
import {Renamed, all} from './lib/barrel';
import * as lib from './lib/decorators';
import * as barMod from 'bar';
import {BarService} from 'bar';
import {Component} from '@angular/core';
import type {Service} from './lib/decorators';
`
	p := build(t, map[string]string{
		"src/lib/decorators.ts": decorators,
		"src/lib/barrel.ts":     barrel,
		"src/main.ts":           main,
		"bar.d.ts":              barDTS,
	})
	end := len(main)
	lookup := func(names ...string) *Symbol {
		t.Helper()
		sym, ok := p.Lookup("src/main.ts", names, end)
		require.True(t, ok, strings.Join(names, "."))
		return sym
	}

	inject := lookup("Inject")
	assert.Equal(t, KindVariable, inject.Kind)
	assert.Equal(t, "src/lib/decorators.ts", inject.File)
	assert.True(t, DocTag("Annotation")(inject))

	assert.False(t, lookup("Shape").IsValue())
	assert.Equal(t, KindClass, lookup("Main").Kind)
	assert.Equal(t, "Service", lookup("Renamed").Name)
	assert.Equal(t, "Inject", lookup("all", "Inject").Name)
	assert.Equal(t, KindClass, lookup("lib", "Service").Kind)
	assert.Equal(t, KindClass, lookup("barMod", "BarService").Kind)
	assert.Equal(t, KindClass, lookup("BarService").Kind)

	component := lookup("Component")
	assert.Equal(t, KindUnresolved, component.Kind)
	assert.Equal(t, "@angular/core", component.Module)
	assert.Equal(t, "Component", component.Imported)
	assert.True(t, component.IsValue())
	assert.True(t, ImportedAs("@angular/core", "Component")(component))
	assert.False(t, ImportedAs("@angular/core", "Injectable")(component))

	service := lookup("Service")
	assert.Equal(t, KindClass, service.Kind)
	assert.False(t, service.IsValue(), "import type never binds a value")
}

func TestLookup_Namespaces(t *testing.T) {
	src := `namespace outer.inner {
  export class Deep {}
  class Hidden {}
}
namespace outer {
  export interface Shape {}
}
`
	p := build(t, map[string]string{"ns.ts": src})
	end := len(src)

	deep, ok := p.Lookup("ns.ts", []string{"outer", "inner", "Deep"}, end)
	require.True(t, ok)
	assert.Equal(t, KindClass, deep.Kind)

	shape, ok := p.Lookup("ns.ts", []string{"outer", "Shape"}, end)
	require.True(t, ok)
	assert.False(t, shape.IsValue())

	_, ok = p.Lookup("ns.ts", []string{"outer", "inner", "Hidden"}, end)
	assert.False(t, ok)
}

func TestLookup_ScriptGlobalsAndDeclareGlobal(t *testing.T) {
	p := build(t, map[string]string{
		"globals.d.ts": "declare class GlobalService {}\n",
		"aug.ts": `export {};
declare global {
  interface Window { app: any }
  const APP_TOKEN: any;
}
`,
		"user.ts": "export class User {}\n",
	})

	sym, ok := p.Lookup("user.ts", []string{"GlobalService"}, 0)
	require.True(t, ok)
	assert.Equal(t, KindClass, sym.Kind)

	sym, ok = p.Lookup("user.ts", []string{"APP_TOKEN"}, 0)
	require.True(t, ok)
	assert.True(t, sym.IsValue())

	_, ok = p.Lookup("globals.d.ts", []string{"User"}, 0)
	assert.False(t, ok, "module exports are not globals")
}

func TestLookup_ParametersDoNotShadowAnnotations(t *testing.T) {
	src := `interface Iface {}
class Foo {
  constructor(Iface: Iface) {
    const local = Iface;
  }
}
`
	p := build(t, map[string]string{"a.ts": src})

	sym, ok := p.Lookup("a.ts", []string{"Iface"}, at(src, "Iface: Iface")+len("Iface: "))
	require.True(t, ok)
	assert.Equal(t, KindInterface, sym.Kind)

	sym, ok = p.Lookup("a.ts", []string{"Iface"}, at(src, "local"))
	require.True(t, ok)
	assert.Equal(t, KindVariable, sym.Kind)
}

func TestLookup_InterfaceAndValueMerge(t *testing.T) {
	src := `export interface Component {}
/** @Annotation */
export const Component: any = null;
`
	p := build(t, map[string]string{"core.ts": src})
	sym, ok := p.Lookup("core.ts", []string{"Component"}, len(src))
	require.True(t, ok)
	assert.Equal(t, KindVariable, sym.Kind)
	assert.True(t, DocTag("Annotation")(sym))
}

func TestLookup_CyclicStarExportsTerminate(t *testing.T) {
	p := build(t, map[string]string{
		"a.ts":    "export * from './b';\n",
		"b.ts":    "export * from './a';\n",
		"main.ts": "import {X} from './a';\n",
	})
	_, ok := p.Lookup("main.ts", []string{"X"}, 30)
	assert.False(t, ok)
}

func TestAddFile_ReplacesPreviousVersion(t *testing.T) {
	p := build(t, map[string]string{"g.d.ts": "declare class Old {}\n"})
	_, ok := p.Lookup("x.ts", []string{"Old"}, 0)
	require.True(t, ok)

	f, err := syntax.Parse(context.Background(), "g.d.ts", []byte("declare class New {}\n"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, p.AddFile(f))

	_, ok = p.Lookup("x.ts", []string{"Old"}, 0)
	assert.False(t, ok)
	_, ok = p.Lookup("x.ts", []string{"New"}, 0)
	assert.True(t, ok)
	assert.Equal(t, []string{"g.d.ts"}, p.Files())

	p.RemoveFile("g.d.ts")
	_, ok = p.Lookup("x.ts", []string{"New"}, 0)
	assert.False(t, ok)
	assert.Empty(t, p.Files())
}

func TestDocTag(t *testing.T) {
	tag := DocTag("Annotation")
	assert.True(t, tag(&Symbol{Doc: "/** @Annotation */"}))
	assert.True(t, tag(&Symbol{Doc: "/**\n * @Annotation\n */"}))
	assert.False(t, tag(&Symbol{Doc: "/** @AnnotationLike */"}))
	assert.False(t, tag(&Symbol{Doc: "/** foo@Annotation */"}))
	assert.False(t, tag(&Symbol{}))
	assert.False(t, tag(nil))
}

func TestAnyOf(t *testing.T) {
	pred := AnyOf(DocTag("Annotation"), nil, ImportedAs("@angular/core"))
	assert.True(t, pred(&Symbol{Kind: KindUnresolved, Module: "@angular/core", Imported: "Input"}))
	assert.True(t, pred(&Symbol{Kind: KindVariable, Doc: "/** @Annotation */"}))
	assert.False(t, pred(&Symbol{Kind: KindVariable}))
}
