package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"downlevel/internal/config"
	"downlevel/internal/logging"
)

// Discover expands the given files and directories into the sorted list of
// source files to load. Directories are walked recursively; explicitly
// named files are taken as-is.
func Discover(paths []string, in config.InputConfig) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", root, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			if rel != "." && ignored(rel, d.Name(), in.IgnorePatterns) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !hasExtension(path, in.Extensions) {
				return nil
			}
			if in.MaxFileBytes > 0 {
				if fi, err := d.Info(); err == nil && fi.Size() > in.MaxFileBytes {
					logging.PipelineDebug("skipping %s: %d bytes exceeds limit", path, fi.Size())
					return nil
				}
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

// hasExtension matches .d.ts files against ".ts" as well.
func hasExtension(path string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func ignored(rel, name string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if p == name || p == rel {
			return true
		}
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// IsDeclarationFile reports whether path only declares types.
func IsDeclarationFile(path string) bool {
	return strings.HasSuffix(path, ".d.ts") || strings.HasSuffix(path, ".d.tsx")
}
