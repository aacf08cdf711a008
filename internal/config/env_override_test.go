package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("DOWNLEVEL_ANNOTATION_TAG replaces the tag", func(t *testing.T) {
		t.Setenv("DOWNLEVEL_ANNOTATION_TAG", "Reflectable")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "Reflectable", cfg.Transform.AnnotationTag)
	})

	t.Run("DOWNLEVEL_LOG_LEVEL enables debug mode", func(t *testing.T) {
		t.Setenv("DOWNLEVEL_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.True(t, cfg.Logging.DebugMode)
	})

	t.Run("DOWNLEVEL_WORKERS ignores garbage", func(t *testing.T) {
		t.Setenv("DOWNLEVEL_WORKERS", "many")

		cfg := &Config{Input: InputConfig{Workers: 5}}
		cfg.applyEnvOverrides()

		assert.Equal(t, 5, cfg.Input.Workers)
	})

	t.Run("DOWNLEVEL_WORKERS sets the worker count", func(t *testing.T) {
		t.Setenv("DOWNLEVEL_WORKERS", "7")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, 7, cfg.Input.Workers)
	})
}
