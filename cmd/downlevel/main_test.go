package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"downlevel/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const annotations = `/** @Annotation */
export function Injectable(): any { return null; }
`

const service = `import {Injectable} from './annotations';

@Injectable()
export class Service {}
`

func resetFlags() {
	verbose = false
	configPath = "downlevel.yaml"
	outDir = ""
	watchMode = false
	untyped = false
	known = nil
	workers = 0
	auditDir = ""
	debounceDur = 300 * time.Millisecond
	showDiff = false
	noColor = false
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()
	logger = zap.NewNop()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, text := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0644))
	}
}

func TestTransform_DirectoryToOut(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFiles(t, src, map[string]string{"annotations.ts": annotations, "service.ts": service})

	stdout, stderr, err := execute(t, "transform", src, "--out", out, "--config", filepath.Join(src, "none.yaml"))
	require.NoError(t, err, stderr)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "2 files, 1 changed, 1 decorators lowered, 0 diagnostics")

	got, err := os.ReadFile(filepath.Join(out, "service.ts"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "{ type: Injectable },")
}

func TestTransform_SingleFileToStdout(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"cmp.ts": "import {Component} from '@angular/core';\n\n@Component({})\nexport class Cmp {}\n",
	})

	stdout, _, err := execute(t, "transform", filepath.Join(src, "cmp.ts"),
		"--known", "@angular/core#Component", "--untyped", "--config", filepath.Join(src, "none.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "static decorators = [")
	assert.Contains(t, stdout, "{ type: Component, args: [{}, ] },")
}

func TestTransform_DiagnosticsFail(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"annotations.ts": annotations,
		"odd.ts": `import {Injectable} from './annotations';
let key: any;
class Odd {
  @Injectable() [key]() {}
}
`,
	})

	_, stderr, err := execute(t, "transform", src, "--config", filepath.Join(src, "none.yaml"))
	require.ErrorIs(t, err, errTransformFailed)
	assert.Contains(t, stderr, "odd.ts:4:3: cannot process decorators on strangely named method")
}

func TestTransform_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "downlevel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transform:\n  annotation_tag: \"bad tag\"\n"), 0644))

	_, _, err := execute(t, "transform", dir, "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "annotation_tag")
}

func TestTransform_RequiresInput(t *testing.T) {
	_, _, err := execute(t, "transform")
	require.Error(t, err)
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "downlevel.yaml")

	stdout, _, err := execute(t, "init-config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	def := config.DefaultConfig()
	assert.Equal(t, def.Transform.AnnotationTag, cfg.Transform.AnnotationTag)
	assert.Equal(t, def.Transform.TypedMetadata, cfg.Transform.TypedMetadata)
	assert.Equal(t, def.Input.Extensions, cfg.Input.Extensions)

	_, _, err = execute(t, "init-config", "--config", path)
	require.Error(t, err, "refuses to overwrite")
}

func TestTransform_Diff(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"annotations.ts": annotations, "service.ts": service})

	stdout, _, err := execute(t, "transform", src, "--diff", "--no-color", "--config", filepath.Join(src, "none.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "--- "+filepath.Join(src, "service.ts"))
	assert.Contains(t, stdout, "-@Injectable()")
	assert.Contains(t, stdout, "+  static decorators: {type: Function, args?: any[]}[] = [")
	assert.NotContains(t, stdout, "annotations.ts")
}
