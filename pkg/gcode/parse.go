package gcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is wrapped by every error returned from Parse.
var ErrMalformed = errors.New("malformed line")

// textCommands take free text instead of letter parameters.
var textCommands = map[string]bool{
	"M23":  true, // select SD file
	"M28":  true, // begin SD write
	"M30":  true, // delete SD file
	"M32":  true, // select and start SD file
	"M117": true, // display message
	"M118": true, // serial print
}

// Parse parses one raw line. The line ending, if present, is split off into
// Line.EOL. The returned Line is never nil: on error it still holds the raw
// text and comment so the caller can pass it through unchanged.
func Parse(raw string) (*Line, error) {
	body, eol := splitEOL(raw)
	l := &Line{Raw: body, EOL: eol}

	code := body
	if i := strings.IndexByte(body, ';'); i >= 0 {
		code = body[:i]
		l.Comment = body[i+1:]
		l.HasComment = true
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return l, nil
	}

	// Checksums ("*71") are transport framing, not part of the command.
	if i := strings.IndexByte(code, '*'); i >= 0 {
		code = strings.TrimSpace(code[:i])
		if code == "" {
			return l, nil
		}
	}

	if err := parseCode(l, code); err != nil {
		l.Command, l.Params, l.Text = "", nil, ""
		return l, fmt.Errorf("%w: %q: %v", ErrMalformed, body, err)
	}
	return l, nil
}

func parseCode(l *Line, code string) error {
	first, rest, _ := strings.Cut(code, " ")
	if isExtendedWord(first) {
		l.Command = strings.ToUpper(first)
		l.Text = strings.TrimSpace(rest)
		return nil
	}

	// Leading line numbers ("N42 G1 ...") carry no motion meaning.
	if upper(code[0]) == 'N' {
		n, err := scanWords(first)
		if err != nil || len(n) != 1 {
			return fmt.Errorf("invalid line number %q", first)
		}
		code = strings.TrimSpace(rest)
		if code == "" {
			return nil
		}
	}

	cmd, args := splitCommand(code)
	switch upper(cmd[0]) {
	case 'G', 'M', 'T':
	default:
		return fmt.Errorf("expected command word, got %q", cmd)
	}
	num := cmd[1:]
	if num == "" {
		return fmt.Errorf("command %q has no number", cmd)
	}
	if _, err := strconv.ParseFloat(num, 64); err != nil || strings.ContainsAny(num, "+-") {
		return fmt.Errorf("invalid command number in %q", cmd)
	}
	l.Command = string(upper(cmd[0])) + normaliseNumber(num)

	if textCommands[l.Command] {
		l.Text = strings.TrimSpace(args)
		return nil
	}
	params, err := scanWords(args)
	if err != nil {
		return err
	}
	l.Params = params
	return nil
}

// splitCommand separates the leading command word from its arguments. The
// command word ends at whitespace or at the next letter ("G1X10").
func splitCommand(code string) (cmd, args string) {
	i := 1
	for i < len(code) && (code[i] >= '0' && code[i] <= '9' || code[i] == '.') {
		i++
	}
	return code[:i], code[i:]
}

// scanWords splits code into letter-addressed words. Words may be separated
// by whitespace or written back to back ("G1X10Y5").
func scanWords(code string) ([]Param, error) {
	var words []Param
	i := 0
	for i < len(code) {
		c := code[i]
		if c == ' ' || c == '\t' {
			i++
			continue
		}
		if !isLetter(c) {
			return nil, fmt.Errorf("unexpected %q at column %d", c, i+1)
		}
		start := i
		i++
		for i < len(code) && isNumberChar(code[i]) {
			i++
		}
		raw := code[start:i]
		p := Param{Letter: upper(c), Raw: raw}
		if num := raw[1:]; num != "" {
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number in %q", raw)
			}
			p.Value, p.HasValue = v, true
		}
		words = append(words, p)
	}
	return words, nil
}

// normaliseNumber strips leading zeros so "01" and "1" name the same command.
func normaliseNumber(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if hasFrac {
		return intPart + "." + frac
	}
	return intPart
}

// isExtendedWord reports whether w is a firmware macro name such as
// EXCLUDE_OBJECT_START, as opposed to a letter-number word like G1.
func isExtendedWord(w string) bool {
	if len(w) < 2 || !isLetter(w[0]) {
		return false
	}
	for i := 1; i < len(w); i++ {
		c := w[i]
		if !isLetter(c) && c != '_' && !(c >= '0' && c <= '9') {
			return false
		}
	}
	// A letter followed only by digits is a regular word.
	for i := 1; i < len(w); i++ {
		if isLetter(w[i]) || w[i] == '_' {
			return isLetter(w[1]) || w[1] == '_'
		}
	}
	return false
}

func splitEOL(raw string) (body, eol string) {
	switch {
	case strings.HasSuffix(raw, "\r\n"):
		return raw[:len(raw)-2], "\r\n"
	case strings.HasSuffix(raw, "\n"):
		return raw[:len(raw)-1], "\n"
	case strings.HasSuffix(raw, "\r"):
		return raw[:len(raw)-1], "\r"
	}
	return raw, ""
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isNumberChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
