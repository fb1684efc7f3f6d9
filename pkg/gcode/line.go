package gcode

import (
	"strings"
)

// Param is one letter-addressed word of a command, e.g. "X10.5".
type Param struct {
	Letter   byte    // upper-case address letter
	Value    float64 // numeric value, zero when HasValue is false
	HasValue bool    // false for bare letters such as "G28 X"
	Raw      string  // original spelling, e.g. "x10.50"
}

// Line is one parsed input line.
type Line struct {
	Raw     string // text without its line ending
	EOL     string // "\n", "\r\n", "\r" or "" for a final unterminated line
	Command string // normalised command ("G1", "M83", "T0", "EXCLUDE_OBJECT_START"); empty for blank or comment-only lines
	Params  []Param
	Text    string // unparsed argument text of text-carrying and extended commands

	Comment    string // text after the first ';', untrimmed
	HasComment bool
}

// String returns the line exactly as it was read, including its line ending.
func (l *Line) String() string {
	return l.Raw + l.EOL
}

// Code returns the command part of the line with the comment removed and
// surrounding whitespace trimmed.
func (l *Line) Code() string {
	code := l.Raw
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}
	return strings.TrimSpace(code)
}

// Param returns the first parameter with the given letter.
func (l *Line) Param(letter byte) (Param, bool) {
	for _, p := range l.Params {
		if p.Letter == letter {
			return p, true
		}
	}
	return Param{}, false
}

// Value returns the numeric value of the first parameter with the given
// letter. ok is false when the letter is absent or carries no value.
func (l *Line) Value(letter byte) (v float64, ok bool) {
	p, found := l.Param(letter)
	if !found || !p.HasValue {
		return 0, false
	}
	return p.Value, true
}

// Has reports whether the line carries the given parameter letter.
func (l *Line) Has(letter byte) bool {
	_, ok := l.Param(letter)
	return ok
}

// IsMove reports whether the command is one of G0, G1, G2 or G3.
func (l *Line) IsMove() bool {
	switch l.Command {
	case "G0", "G1", "G2", "G3":
		return true
	}
	return false
}

// IsArc reports whether the command is G2 or G3.
func (l *Line) IsArc() bool {
	return l.Command == "G2" || l.Command == "G3"
}

// IsBlank reports whether the line has neither a command nor a comment.
func (l *Line) IsBlank() bool {
	return l.Command == "" && !l.HasComment && strings.TrimSpace(l.Raw) == ""
}

// WithParams returns the text of a copy of l in which each given parameter
// replaces the same-letter parameter of the original (or is appended when the
// original lacks it). Other parameters keep their raw spelling and the
// comment is preserved. The line ending is not included.
func (l *Line) WithParams(params ...Param) string {
	out := make([]Param, len(l.Params))
	copy(out, l.Params)

	for _, np := range params {
		np.Raw = ""
		replaced := false
		for i := range out {
			if out[i].Letter == np.Letter {
				out[i] = np
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, np)
		}
	}

	text := Format(l.Command, out...)
	if l.HasComment {
		text += " ;" + l.Comment
	}
	return text
}
