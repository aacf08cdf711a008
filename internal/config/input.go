package config

import "runtime"

// InputConfig controls which files the driver transforms.
type InputConfig struct {
	// Workers caps concurrent per-file transforms.
	Workers int `yaml:"workers" json:"workers,omitempty"`
	// Extensions are the file suffixes picked up when walking directories.
	Extensions []string `yaml:"extensions" json:"extensions,omitempty"`
	// IgnorePatterns skips matching paths/dirs (relative to the walk root).
	IgnorePatterns []string `yaml:"ignore_patterns" json:"ignore_patterns,omitempty"`
	// MaxFileBytes skips files larger than this.
	MaxFileBytes int64 `yaml:"max_file_bytes" json:"max_file_bytes,omitempty"`
}

// DefaultInputConfig returns defaults for input discovery.
func DefaultInputConfig() InputConfig {
	workers := runtime.NumCPU()
	if workers > 16 {
		workers = 16
	}
	if workers < 2 {
		workers = 2
	}
	return InputConfig{
		Workers:    workers,
		Extensions: []string{".ts", ".tsx"},
		IgnorePatterns: []string{
			".git",
			"node_modules",
			"dist",
			"build",
			".cache",
		},
		MaxFileBytes: 4 * 1024 * 1024,
	}
}
