package brick

import (
	"fmt"

	"github.com/matzehuels/bricklayers/pkg/errors"
)

// ErrCancelled is returned by Stream.Err when the caller's cancel poll asked
// the run to stop. It is not a failure: output produced so far is complete up
// to the last yielded line.
var ErrCancelled = errors.New(errors.ErrCodeCancelled, "run cancelled")

// Diagnostic is a recoverable problem found during a run. The affected lines
// are always passed through unmodified.
type Diagnostic struct {
	Code    errors.Code // ErrCodeParseWarning or ErrCodeGeometryAmbiguity
	Line    int         // 1-based input line number
	Layer   int         // layer index, -1 before the first layer marker
	Object  string      // object id, empty outside object markers
	Message string
}

// Error implements error so a Diagnostic can be wrapped or logged as one.
func (d Diagnostic) Error() string {
	loc := fmt.Sprintf("line %d", d.Line)
	if d.Layer >= 0 {
		loc += fmt.Sprintf(", layer %d", d.Layer)
	}
	if d.Object != "" {
		loc += fmt.Sprintf(", object %q", d.Object)
	}
	return fmt.Sprintf("%s: %s: %s", d.Code, loc, d.Message)
}
