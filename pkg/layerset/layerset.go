// Package layerset parses layer selections such as "5,7-9,12".
//
// Selections name layer indices (0-based counts of layer-change markers) as
// a comma-separated list of single layers and inclusive ranges. Whitespace is
// ignored and the empty string selects nothing.
package layerset

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// MaxSpan bounds the number of layers a single range may expand to.
const MaxSpan = 100_000

var setLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Dash", Pattern: `-`},
	{Name: "Comma", Pattern: `,`},
})

// expr is the grammar root: one or more items separated by commas.
type expr struct {
	Items []*item `parser:"@@ ( Comma @@ )*"`
}

// item is a single layer or an inclusive range.
type item struct {
	Lo int  `parser:"@Int"`
	Hi *int `parser:"( Dash @Int )?"`
}

var parser = participle.MustBuild[expr](
	participle.Lexer(setLexer),
	participle.Elide("Whitespace"),
)

// Range is an inclusive span of layers.
type Range struct {
	Lo, Hi int
}

// String renders the range as "lo" or "lo-hi".
func (r Range) String() string {
	if r.Lo == r.Hi {
		return strconv.Itoa(r.Lo)
	}
	return fmt.Sprintf("%d-%d", r.Lo, r.Hi)
}

// ParseRanges parses s into its ranges in input order.
func ParseRanges(s string) ([]Range, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	e, err := parser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("invalid layer set %q: %w", s, err)
	}
	ranges := make([]Range, 0, len(e.Items))
	for _, it := range e.Items {
		r := Range{Lo: it.Lo, Hi: it.Lo}
		if it.Hi != nil {
			r.Hi = *it.Hi
		}
		if r.Hi < r.Lo {
			return nil, fmt.Errorf("invalid layer set %q: range %d-%d is reversed", s, r.Lo, r.Hi)
		}
		if r.Hi-r.Lo >= MaxSpan {
			return nil, fmt.Errorf("invalid layer set %q: range %s spans more than %d layers", s, r, MaxSpan)
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// Parse parses s into a sorted list of distinct layers.
func Parse(s string) ([]int, error) {
	ranges, err := ParseRanges(s)
	if err != nil {
		return nil, err
	}
	var layers []int
	for _, r := range ranges {
		for l := r.Lo; l <= r.Hi; l++ {
			layers = append(layers, l)
		}
	}
	slices.Sort(layers)
	return slices.Compact(layers), nil
}

// Format renders layers in the compact form accepted by Parse, merging
// consecutive layers into ranges: [5 7 8 9 12] becomes "5,7-9,12".
func Format(layers []int) string {
	sorted := slices.Clone(layers)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var parts []string
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		parts = append(parts, Range{Lo: sorted[i], Hi: sorted[j]}.String())
		i = j + 1
	}
	return strings.Join(parts, ",")
}
