package vocab

import (
	"fmt"
	"strings"
)

// Tag is the semantic feature of a stretch of G-code.
type Tag string

const (
	TagOuterPerimeter    Tag = "outer-perimeter"
	TagInnerPerimeter    Tag = "inner-perimeter"
	TagOverhangPerimeter Tag = "overhang-perimeter"
	TagWipeStart         Tag = "wipe-start"
	TagWipeEnd           Tag = "wipe-end"
	TagLayerChange       Tag = "layer-change"
	TagObjectChange      Tag = "object-change"
	TagOther             Tag = "other"
)

// AllTags lists every tag in a stable order.
func AllTags() []Tag {
	return []Tag{
		TagOuterPerimeter, TagInnerPerimeter, TagOverhangPerimeter,
		TagWipeStart, TagWipeEnd, TagLayerChange, TagObjectChange, TagOther,
	}
}

// PerimeterTags lists the tags that describe wall loops.
func PerimeterTags() []Tag {
	return []Tag{TagOuterPerimeter, TagInnerPerimeter, TagOverhangPerimeter}
}

// IsPerimeter reports whether t is one of the wall features.
func (t Tag) IsPerimeter() bool {
	switch t {
	case TagOuterPerimeter, TagInnerPerimeter, TagOverhangPerimeter:
		return true
	}
	return false
}

// ParseTag parses a tag name. Short aliases "outer", "inner" and "overhang"
// are accepted for the perimeter tags.
func ParseTag(s string) (Tag, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "outer":
		return TagOuterPerimeter, nil
	case "inner":
		return TagInnerPerimeter, nil
	case "overhang":
		return TagOverhangPerimeter, nil
	}
	for _, t := range AllTags() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown feature %q", s)
}
