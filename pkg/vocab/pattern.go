package vocab

import (
	"fmt"
	"strings"
)

// Pattern is one compiled synonym. A synonym is matched by exact string
// equality unless it ends in '*', in which case it matches as a prefix and
// the remainder is captured.
type Pattern struct {
	text   string
	prefix bool
}

// CompilePattern validates and compiles a synonym.
func CompilePattern(s string) (Pattern, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	if i := strings.IndexByte(s, '*'); i >= 0 && i != len(s)-1 {
		return Pattern{}, fmt.Errorf("pattern %q: '*' is only allowed at the end", s)
	}
	if strings.HasSuffix(s, "*") {
		return Pattern{text: s[:len(s)-1], prefix: true}, nil
	}
	return Pattern{text: s}, nil
}

// Match reports whether s matches the pattern and returns the captured
// remainder for prefix patterns, trimmed of spaces and quotes.
func (p Pattern) Match(s string) (capture string, ok bool) {
	if !p.prefix {
		return "", s == p.text
	}
	if !strings.HasPrefix(s, p.text) {
		return "", false
	}
	return strings.Trim(s[len(p.text):], ` "'`), true
}

// String returns the pattern as written.
func (p Pattern) String() string {
	if p.prefix {
		return p.text + "*"
	}
	return p.text
}

// set is an ordered list of patterns; exact patterns are checked before
// prefix patterns so that "MESH:NONMESH" wins over "MESH:*".
type set []Pattern

func compileSet(name string, synonyms []string) (set, error) {
	var exact, prefix set
	for _, s := range synonyms {
		p, err := CompilePattern(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.prefix {
			prefix = append(prefix, p)
		} else {
			exact = append(exact, p)
		}
	}
	return append(exact, prefix...), nil
}

// match returns the capture of the first matching pattern. When the pattern
// captures nothing, the matched candidate itself is returned.
func (s set) match(candidates []string) (string, bool) {
	for _, c := range candidates {
		for _, p := range s {
			if capture, ok := p.Match(c); ok {
				if capture == "" {
					capture = c
				}
				return capture, true
			}
		}
	}
	return "", false
}
