package vocab

import (
	"strings"

	"github.com/matzehuels/bricklayers/pkg/gcode"
)

// Matcher is a compiled, immutable Vocabulary. It is safe for concurrent use
// and hands out per-run Classifiers.
type Matcher struct {
	name     string
	layer    set
	objStart set
	objStop  set
	wipe     [2]set // start, end
	features []featureSet
	prefixes []string
}

type featureSet struct {
	tag  Tag
	pats set
}

// Compile validates v and compiles its synonym sets. v is not retained.
func Compile(v *Vocabulary) (*Matcher, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	m := &Matcher{name: v.Name, prefixes: trimAll(v.FeaturePrefixes)}

	var err error
	compile := func(name string, synonyms []string) set {
		if err != nil {
			return nil
		}
		var s set
		s, err = compileSet(name, synonyms)
		return s
	}
	m.layer = compile("layer_change", v.LayerChange)
	m.objStart = compile("object_start", v.ObjectStart)
	m.objStop = compile("object_stop", v.ObjectStop)
	m.wipe[0] = compile("wipe_start", v.WipeStart)
	m.wipe[1] = compile("wipe_end", v.WipeEnd)
	m.features = []featureSet{
		{TagOuterPerimeter, compile("outer_perimeter", v.OuterPerimeter)},
		{TagInnerPerimeter, compile("inner_perimeter", v.InnerPerimeter)},
		{TagOverhangPerimeter, compile("overhang_perimeter", v.OverhangPerimeter)},
		{TagOther, compile("other_features", v.OtherFeatures)},
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the name of the compiled vocabulary.
func (m *Matcher) Name() string { return m.name }

// NewClassifier returns a classifier with no active feature.
func (m *Matcher) NewClassifier() *Classifier {
	return &Classifier{m: m, feature: TagOther}
}

// Result is the classification of one line.
type Result struct {
	// Tag is the marker's own tag for marker lines and the active feature
	// for every other line.
	Tag Tag
	// Marker is set when the line itself matched a synonym set.
	Marker bool
	// Feature is the active feature after the line.
	Feature Tag
	// Object is the object id named by an object-change marker; empty for
	// stop markers and non-object lines.
	Object string
	// Capture is the text captured by a prefix layer-change marker.
	Capture string
	// Wiping reports whether a wipe is in progress after the line.
	Wiping bool
}

// Classifier tags lines with features. Features persist across lines until
// another feature marker appears. A Classifier is not safe for concurrent use.
type Classifier struct {
	m       *Matcher
	feature Tag
	wiping  bool
}

// Feature returns the active feature.
func (c *Classifier) Feature() Tag { return c.feature }

// Classify tags l and updates the active feature.
func (c *Classifier) Classify(l *gcode.Line) Result {
	cands := candidates(l)
	if len(cands) == 0 {
		return c.result(c.feature, false)
	}
	m := c.m

	if capture, ok := m.layer.match(cands); ok {
		r := c.result(TagLayerChange, true)
		r.Capture = capture
		return r
	}
	if _, ok := m.objStop.match(cands); ok {
		return c.result(TagObjectChange, true)
	}
	if id, ok := m.objStart.match(cands); ok {
		r := c.result(TagObjectChange, true)
		r.Object = id
		return r
	}
	if _, ok := m.wipe[0].match(cands); ok {
		c.wiping = true
		return c.result(TagWipeStart, true)
	}
	if _, ok := m.wipe[1].match(cands); ok {
		c.wiping = false
		return c.result(TagWipeEnd, true)
	}
	for _, fs := range m.features {
		if _, ok := fs.pats.match(cands); ok {
			c.feature = fs.tag
			return c.result(fs.tag, true)
		}
	}
	if l.HasComment {
		comment := strings.TrimSpace(l.Comment)
		for _, p := range m.prefixes {
			if strings.HasPrefix(comment, p) {
				c.feature = TagOther
				return c.result(TagOther, true)
			}
		}
	}
	return c.result(c.feature, false)
}

func (c *Classifier) result(tag Tag, marker bool) Result {
	return Result{Tag: tag, Marker: marker, Feature: c.feature, Wiping: c.wiping}
}

// candidates returns the texts a line is matched by: its trimmed comment and,
// for non-motion commands, its trimmed command text.
func candidates(l *gcode.Line) []string {
	var out []string
	if l.HasComment {
		if s := strings.TrimSpace(l.Comment); s != "" {
			out = append(out, s)
		}
	}
	if l.Command != "" && !l.IsMove() {
		if s := l.Code(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func trimAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
