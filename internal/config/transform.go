package config

import (
	"fmt"
	"strings"
)

// TransformConfig controls decorator lowering.
type TransformConfig struct {
	// AnnotationTag is the JSDoc tag (without '@') that marks a declaration
	// as a reflectable annotation.
	AnnotationTag string `yaml:"annotation_tag" json:"annotation_tag,omitempty"`
	// KnownAnnotations lists "module#name" pairs treated as annotations
	// when the module's declarations are not part of the program.
	KnownAnnotations []string `yaml:"known_annotations" json:"known_annotations,omitempty"`
	// TypedMetadata emits TypeScript type annotations on the generated
	// static members. Disable for plain JavaScript targets.
	TypedMetadata bool `yaml:"typed_metadata" json:"typed_metadata"`
}

// DefaultTransformConfig returns the lowering defaults.
func DefaultTransformConfig() TransformConfig {
	return TransformConfig{
		AnnotationTag: "Annotation",
		TypedMetadata: true,
	}
}

// Validate checks the tag and the known-annotation entries.
func (c TransformConfig) Validate() error {
	if c.AnnotationTag == "" {
		return fmt.Errorf("transform.annotation_tag must not be empty")
	}
	if strings.ContainsAny(c.AnnotationTag, "@ \t\n") {
		return fmt.Errorf("transform.annotation_tag %q must be a bare tag name", c.AnnotationTag)
	}
	for _, entry := range c.KnownAnnotations {
		if _, _, ok := SplitKnownAnnotation(entry); !ok {
			return fmt.Errorf("transform.known_annotations entry %q must look like module#name", entry)
		}
	}
	return nil
}

// SplitKnownAnnotation splits "module#name".
func SplitKnownAnnotation(entry string) (module, name string, ok bool) {
	i := strings.LastIndex(entry, "#")
	if i <= 0 || i == len(entry)-1 {
		return "", "", false
	}
	return entry[:i], entry[i+1:], true
}
