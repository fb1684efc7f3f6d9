package pipeline

import (
	"bufio"
	"bytes"
	"io"
	"iter"
)

// lineSource yields the lines of a reader with their line endings. A read
// error ends the sequence and is kept in err.
type lineSource struct {
	r   *bufio.Reader
	n   int64
	err error
}

func (s *lineSource) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, err := s.r.ReadString('\n')
			s.n += int64(len(line))
			if line != "" && !yield(line) {
				return
			}
			if err != nil {
				if err != io.EOF {
					s.err = err
				}
				return
			}
		}
	}
}

// Lines returns the lines of r including their line endings, for callers
// that drive the engine themselves. Read errors end the sequence early.
func Lines(r io.Reader) iter.Seq[string] {
	src := &lineSource{r: bufio.NewReader(r)}
	return src.All()
}

// countLines counts lines the way lineSource splits them.
func countLines(data []byte) int {
	n := bytes.Count(data, []byte{'\n'})
	if len(data) > 0 && data[len(data)-1] != '\n' {
		n++
	}
	return n
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
