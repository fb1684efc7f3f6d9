package loop

import "github.com/matzehuels/bricklayers/pkg/gcode"

// Tracker assembles loops from a stream of segments. At most one loop is
// open at a time. A Tracker is not safe for concurrent use.
type Tracker struct {
	tol     float64
	active  *Loop
	pending []Ref
	groups  map[GroupKey][]*Loop
}

// NewTracker creates a tracker that treats end points within tol of the
// start as closing a loop.
func NewTracker(tol float64) *Tracker {
	return &Tracker{tol: tol, groups: make(map[GroupKey][]*Loop)}
}

// Active returns the open loop, or nil.
func (t *Tracker) Active() *Loop {
	return t.active
}

// Append adds a segment to the open loop for key. A new loop is opened when
// key differs from the open loop's key or the open loop has already closed
// on itself. Lines recorded with Note since the previous segment become the
// segment's prefix.
func (t *Tracker) Append(key Key, line *gcode.Line, move gcode.Move, index int) *Loop {
	if t.active != nil && (t.active.Key != key || t.active.Closed(t.tol)) {
		t.Close()
	}
	if t.active == nil {
		t.active = &Loop{Key: key, Index: len(t.groups[key.Group()])}
		t.pending = nil
	}
	t.active.Segments = append(t.active.Segments, Segment{
		Line:   line,
		Move:   move,
		Index:  index,
		Prefix: t.pending,
	})
	t.pending = nil
	return t.active
}

// Note records a line that does not interrupt the open loop. It is attached
// to the next segment, or dropped from the loop if the loop closes first.
// Without an open loop Note does nothing.
func (t *Tracker) Note(line *gcode.Line, index int) {
	if t.active == nil {
		return
	}
	t.pending = append(t.pending, Ref{Line: line, Index: index})
}

// Close finalizes the open loop, if any, and stores it in its group.
func (t *Tracker) Close() *Loop {
	l := t.active
	if l == nil {
		return nil
	}
	l.finalize()
	g := l.Key.Group()
	t.groups[g] = append(t.groups[g], l)
	t.active = nil
	t.pending = nil
	return l
}

// Pending reports whether any loops are stored for g.
func (t *Tracker) Pending(g GroupKey) bool {
	return len(t.groups[g]) > 0
}

// TakeGroup closes the open loop when it belongs to g, then removes and
// returns g's loops in input order together with their nesting forest.
func (t *Tracker) TakeGroup(g GroupKey) ([]*Loop, *Forest) {
	if t.active != nil && t.active.Key.Group() == g {
		t.Close()
	}
	loops := t.groups[g]
	delete(t.groups, g)
	return loops, Nest(loops, t.tol)
}

// Discard drops every open and stored loop.
func (t *Tracker) Discard() {
	t.active = nil
	t.pending = nil
	clear(t.groups)
}
