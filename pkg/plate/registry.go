// Package plate tracks per-object state for files that print several
// objects on one build plate.
//
// Every object keeps its own printed-layer counter, so the brick pattern of
// one object is independent of which layers other objects appear on.
package plate

// Object is the state of one printed object.
type Object struct {
	ID string
	// LastLayer is the most recent layer the object was observed on, -1
	// before the first observation.
	LastLayer int
	// Printed counts the distinct counted layers the object was observed
	// on. The first counted layer has Printed == 1.
	Printed int

	lastCounted int
}

// Observe records that the object printed on layer. Counted layers advance
// the printed-layer counter once per distinct layer; uncounted (ignored or
// early) layers only update LastLayer.
func (o *Object) Observe(layer int, counted bool) {
	o.LastLayer = layer
	if !counted || layer == o.lastCounted {
		return
	}
	o.lastCounted = layer
	o.Printed++
}

// Parity returns the printed-layer counter modulo 2.
func (o *Object) Parity() int {
	return o.Printed % 2
}

// Registry holds the objects of one run, created lazily on first reference.
// It is not safe for concurrent use; each run owns its own Registry.
type Registry struct {
	objects map[string]*Object
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]*Object)}
}

// Get returns the object with the given id, creating it if needed. The empty
// id names the implicit object of files without object markers.
func (r *Registry) Get(id string) *Object {
	if o, ok := r.objects[id]; ok {
		return o
	}
	o := &Object{ID: id, LastLayer: -1, lastCounted: -1}
	r.objects[id] = o
	r.order = append(r.order, id)
	return o
}

// Lookup returns the object with the given id without creating it.
func (r *Registry) Lookup(id string) (*Object, bool) {
	o, ok := r.objects[id]
	return o, ok
}

// Objects returns every object in order of first reference.
func (r *Registry) Objects() []*Object {
	out := make([]*Object, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.objects[id])
	}
	return out
}

// Len returns the number of known objects.
func (r *Registry) Len() int {
	return len(r.order)
}
