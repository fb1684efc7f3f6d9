package vocab

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Vocabulary is a named collection of synonym sets. Each synonym is matched
// against the trimmed comment of a line and, for firmware macros, against
// its trimmed command text. See Pattern for the matching rules.
type Vocabulary struct {
	Name string `toml:"name" yaml:"name" json:"name"`

	OuterPerimeter    []string `toml:"outer_perimeter" yaml:"outer_perimeter" json:"outer_perimeter"`
	InnerPerimeter    []string `toml:"inner_perimeter" yaml:"inner_perimeter" json:"inner_perimeter"`
	OverhangPerimeter []string `toml:"overhang_perimeter" yaml:"overhang_perimeter" json:"overhang_perimeter"`

	WipeStart []string `toml:"wipe_start" yaml:"wipe_start" json:"wipe_start"`
	WipeEnd   []string `toml:"wipe_end" yaml:"wipe_end" json:"wipe_end"`

	LayerChange []string `toml:"layer_change" yaml:"layer_change" json:"layer_change"`

	// ObjectStart markers name the object that follows; a trailing '*'
	// captures the object id. ObjectStop markers end the current object.
	ObjectStart []string `toml:"object_start" yaml:"object_start" json:"object_start"`
	ObjectStop  []string `toml:"object_stop" yaml:"object_stop" json:"object_stop"`

	// OtherFeatures are exact non-perimeter feature markers (infill, support).
	OtherFeatures []string `toml:"other_features" yaml:"other_features" json:"other_features"`
	// FeaturePrefixes introduce feature comments ("TYPE:"); any unmatched
	// comment with one of these prefixes switches the feature to "other".
	FeaturePrefixes []string `toml:"feature_prefixes" yaml:"feature_prefixes" json:"feature_prefixes"`
}

// Sets returns the synonym sets keyed by a display name, in a stable order.
func (v *Vocabulary) Sets() []NamedSet {
	return []NamedSet{
		{"outer_perimeter", v.OuterPerimeter},
		{"inner_perimeter", v.InnerPerimeter},
		{"overhang_perimeter", v.OverhangPerimeter},
		{"wipe_start", v.WipeStart},
		{"wipe_end", v.WipeEnd},
		{"layer_change", v.LayerChange},
		{"object_start", v.ObjectStart},
		{"object_stop", v.ObjectStop},
		{"other_features", v.OtherFeatures},
		{"feature_prefixes", v.FeaturePrefixes},
	}
}

// NamedSet pairs a synonym set with its configuration key.
type NamedSet struct {
	Name     string
	Synonyms []string
}

// Validate checks that the vocabulary can classify anything at all and that
// every synonym compiles.
func (v *Vocabulary) Validate() error {
	if v == nil {
		return fmt.Errorf("vocabulary is nil")
	}
	if len(v.LayerChange) == 0 {
		return fmt.Errorf("vocabulary %q: no layer_change markers", v.Name)
	}
	if len(v.OuterPerimeter)+len(v.InnerPerimeter)+len(v.OverhangPerimeter) == 0 {
		return fmt.Errorf("vocabulary %q: no perimeter markers", v.Name)
	}
	for _, s := range v.Sets() {
		if _, err := compileSet(s.Name, s.Synonyms); err != nil {
			return fmt.Errorf("vocabulary %q: %w", v.Name, err)
		}
	}
	return nil
}

// Clone returns a deep copy of v.
func (v *Vocabulary) Clone() *Vocabulary {
	c := *v
	c.OuterPerimeter = slices.Clone(v.OuterPerimeter)
	c.InnerPerimeter = slices.Clone(v.InnerPerimeter)
	c.OverhangPerimeter = slices.Clone(v.OverhangPerimeter)
	c.WipeStart = slices.Clone(v.WipeStart)
	c.WipeEnd = slices.Clone(v.WipeEnd)
	c.LayerChange = slices.Clone(v.LayerChange)
	c.ObjectStart = slices.Clone(v.ObjectStart)
	c.ObjectStop = slices.Clone(v.ObjectStop)
	c.OtherFeatures = slices.Clone(v.OtherFeatures)
	c.FeaturePrefixes = slices.Clone(v.FeaturePrefixes)
	return &c
}

// Merge returns the union of the given vocabularies under a new name.
// Synonyms keep first-seen order and duplicates are dropped.
func Merge(name string, vs ...*Vocabulary) *Vocabulary {
	out := &Vocabulary{Name: name}
	for _, v := range vs {
		out.OuterPerimeter = union(out.OuterPerimeter, v.OuterPerimeter)
		out.InnerPerimeter = union(out.InnerPerimeter, v.InnerPerimeter)
		out.OverhangPerimeter = union(out.OverhangPerimeter, v.OverhangPerimeter)
		out.WipeStart = union(out.WipeStart, v.WipeStart)
		out.WipeEnd = union(out.WipeEnd, v.WipeEnd)
		out.LayerChange = union(out.LayerChange, v.LayerChange)
		out.ObjectStart = union(out.ObjectStart, v.ObjectStart)
		out.ObjectStop = union(out.ObjectStop, v.ObjectStop)
		out.OtherFeatures = union(out.OtherFeatures, v.OtherFeatures)
		out.FeaturePrefixes = union(out.FeaturePrefixes, v.FeaturePrefixes)
	}
	return out
}

func union(a, b []string) []string {
	for _, s := range b {
		if !slices.Contains(a, s) {
			a = append(a, s)
		}
	}
	return a
}

// Format identifies a vocabulary file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the file format from its extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported vocabulary file %q (want .toml, .yaml or .yml)", path)
}

// LoadFile reads and validates a vocabulary file. The format follows the
// file extension. A vocabulary without a name is named after the file.
func LoadFile(path string) (*Vocabulary, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v, err := Load(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if v.Name == "" {
		v.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return v, nil
}

// Load decodes and validates a vocabulary from r.
func Load(r io.Reader, format Format) (*Vocabulary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var v Vocabulary
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported vocabulary format %q", format)
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Encode writes v in the given format.
func (v *Vocabulary) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported vocabulary format %q", format)
}
