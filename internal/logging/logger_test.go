package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func resetLogging(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		CloseAudit()
		require.NoError(t, Initialize(Options{}))
	})
}

// TestAllCategoriesLog tests that all categories create log files when debug mode is on
func TestAllCategoriesLog(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	require.NoError(t, Initialize(Options{DebugMode: true, Level: "debug", Dir: dir}))
	assert.True(t, IsDebugMode())

	categories := []Category{
		CategoryBoot,
		CategoryParse,
		CategorySemantic,
		CategoryClassify,
		CategoryRewrite,
		CategoryPipeline,
		CategoryWatch,
	}
	for _, cat := range categories {
		require.True(t, IsCategoryEnabled(cat), "category %s", cat)
		l := Get(cat)
		l.Info("info for %s", cat)
		l.Debug("debug for %s", cat)
	}
	CloseAll()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
				require.NoError(t, err)
				assert.NotEmpty(t, content, "log file for %s", cat)
			}
		}
		assert.True(t, found, "no log file for %s", cat)
	}
}

// TestDebugModeDisabled tests that nothing is written when debug mode is off
func TestDebugModeDisabled(t *testing.T) {
	resetLogging(t)
	dir := filepath.Join(t.TempDir(), "logs")

	require.NoError(t, Initialize(Options{DebugMode: false, Dir: dir}))
	assert.False(t, IsCategoryEnabled(CategoryRewrite))

	RewriteDebug("should not be written")
	Pipeline("should not be written")
	CloseAll()

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "logs dir must not be created when disabled")
}

func TestCategoryFilter(t *testing.T) {
	resetLogging(t)

	require.NoError(t, Initialize(Options{
		DebugMode:  true,
		Categories: map[string]bool{"rewrite": false},
		Dir:        t.TempDir(),
	}))
	assert.False(t, IsCategoryEnabled(CategoryRewrite))
	assert.True(t, IsCategoryEnabled(CategoryParse), "unlisted categories default to enabled")
}

func TestInitializeRejectsUnknownLevel(t *testing.T) {
	resetLogging(t)
	assert.Error(t, Initialize(Options{DebugMode: true, Level: "chatty"}))
}

func TestAttachRoutesThroughSharedLogger(t *testing.T) {
	resetLogging(t)

	core, recorded := observer.New(zap.DebugLevel)
	Attach(zap.New(core))

	Get(CategoryPipeline).With("file", "a.ts").Info("rewrote %d classes", 2)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rewrote 2 classes", entries[0].Message)
	assert.Equal(t, "pipeline", entries[0].LoggerName)
	assert.Equal(t, "a.ts", entries[0].ContextMap()["file"])
}

func TestAuditTrail(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	require.NoError(t, Initialize(Options{DebugMode: true, Dir: dir}))
	require.NoError(t, InitAudit(dir))

	Audit(AuditEvent{EventType: AuditDecoratorLowered, File: "a.ts", Line: 3, Column: 1, Target: "class", Name: "Component"})
	CloseAudit()

	matches, err := filepath.Glob(filepath.Join(dir, "*_audit.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	content, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"decorator_lowered"`)
	assert.Contains(t, string(content), `"name":"Component"`)
}
