package gcode

import (
	"strconv"
	"strings"
)

// Decimal places used when formatting generated parameters.
const (
	AxisDecimals    = 3
	ExtrudeDecimals = 5
	FeedDecimals    = 3
)

// FormatNumber renders v with at most decimals fractional digits and no
// trailing zeros: 50 -> "50", 0.5 -> "0.5", -0 -> "0".
func FormatNumber(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if strings.IndexByte(s, '.') >= 0 {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// String renders the parameter, preferring its original spelling.
func (p Param) String() string {
	if p.Raw != "" {
		return p.Raw
	}
	if !p.HasValue {
		return string(p.Letter)
	}
	return string(p.Letter) + FormatNumber(p.Value, decimalsFor(p.Letter))
}

// P builds a valued parameter.
func P(letter byte, v float64) Param {
	return Param{Letter: letter, Value: v, HasValue: true}
}

// Format renders a command line (without comment or line ending).
func Format(command string, params ...Param) string {
	var b strings.Builder
	b.WriteString(command)
	for _, p := range params {
		b.WriteByte(' ')
		b.WriteString(p.String())
	}
	return b.String()
}

func decimalsFor(letter byte) int {
	switch letter {
	case 'E':
		return ExtrudeDecimals
	case 'F':
		return FeedDecimals
	default:
		return AxisDecimals
	}
}
