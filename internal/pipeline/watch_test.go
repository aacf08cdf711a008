package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rebuild struct {
	sum *Summary
	err error
}

func startWatcher(t *testing.T, r *Runner, roots []string) (*Watcher, <-chan rebuild) {
	t.Helper()
	ch := make(chan rebuild, 16)
	w := NewWatcher(r, roots, func(sum *Summary, err error) {
		ch <- rebuild{sum, err}
	})
	w.SetDebounce(50 * time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, ch
}

func waitRebuild(t *testing.T, ch <-chan rebuild) rebuild {
	t.Helper()
	select {
	case rb := <-ch:
		return rb
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild within 5s")
		return rebuild{}
	}
}

func TestWatcher_RebuildsOnChange(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeTree(t, src, fixture)

	r := NewRunner(testConfig(), out)
	_, err := r.Run(context.Background(), []string{src})
	require.NoError(t, err)

	w, ch := startWatcher(t, r, []string{src})
	assert.True(t, w.IsWatching())
	assert.NotEmpty(t, w.WatchedDirs())

	writeTree(t, src, map[string]string{"widget.ts": `import {Injectable} from './annotations';

@Injectable()
export class Widget {}
`})
	rb := waitRebuild(t, ch)
	require.NoError(t, rb.err)
	require.NotNil(t, rb.sum)

	widget, err := os.ReadFile(filepath.Join(out, "widget.ts"))
	require.NoError(t, err)
	assert.Contains(t, string(widget), "{ type: Injectable },")
	assert.Contains(t, r.Files(), filepath.Join(src, "widget.ts"))

	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.Rebuilds, 1)
	assert.Equal(t, filepath.Join(src, "widget.ts"), stats.LastEventPath)
}

func TestWatcher_RemovesDeletedFiles(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, fixture)

	r := NewRunner(testConfig(), "")
	_, err := r.Run(context.Background(), []string{src})
	require.NoError(t, err)

	w, ch := startWatcher(t, r, []string{src})
	logger := filepath.Join(src, "logger.ts")
	require.NoError(t, os.Remove(logger))

	rb := waitRebuild(t, ch)
	require.NoError(t, rb.err)
	assert.NotContains(t, r.Files(), logger)
	assert.GreaterOrEqual(t, w.Stats().FilesDeleted, 1)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	r := NewRunner(testConfig(), "")
	w := NewWatcher(r, []string{t.TempDir()}, nil)
	w.Stop()
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())
}

func TestWatcher_StartFailsOnMissingRoot(t *testing.T) {
	r := NewRunner(testConfig(), "")
	w := NewWatcher(r, []string{filepath.Join(t.TempDir(), "gone")}, nil)
	require.Error(t, w.Start(context.Background()))
	assert.False(t, w.IsWatching())
}

func TestWatcher_Accepts(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"only.ts": "", "dir/keep.ts": ""})
	out := filepath.Join(src, "dir", "gen")

	r := NewRunner(testConfig(), out)
	w := NewWatcher(r, []string{filepath.Join(src, "only.ts"), filepath.Join(src, "dir")}, nil)

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(src, "only.ts"), true},
		{filepath.Join(src, "sibling.ts"), false},
		{filepath.Join(src, "dir", "keep.ts"), true},
		{filepath.Join(src, "dir", "new.tsx"), true},
		{filepath.Join(src, "dir", "notes.md"), false},
		{filepath.Join(src, "dir", "node_modules", "x.ts"), false},
		{filepath.Join(src, "dir", "gen", "keep.ts"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.accepts(tt.path), tt.path)
	}
}
