package cache

// Keyer builds cache keys.
type Keyer interface {
	// OutputKey is the key of a processed file.
	OutputKey(inputHash string, opts OutputKeyOpts) string

	// ForestKey is the key of a rendered nesting forest.
	ForestKey(inputHash string, opts ForestKeyOpts) string
}

// OutputKeyOpts are the settings that change processed output.
type OutputKeyOpts struct {
	StartAtLayer        int      `json:"start_at_layer"`
	ExtrusionMultiplier float64  `json:"extrusion_multiplier"`
	LayersToIgnore      string   `json:"layers_to_ignore,omitempty"`
	Features            []string `json:"features,omitempty"`
	Vocabulary          string   `json:"vocabulary"` // dialect name or vocabulary file hash
	Parity              string   `json:"parity"`
	MinDepth            int      `json:"min_depth"`
	Mark                string   `json:"mark,omitempty"` // version stamped into the header, if any
}

// ForestKeyOpts are the settings that change a rendered nesting forest.
type ForestKeyOpts struct {
	Layer      int    `json:"layer"`
	Object     string `json:"object,omitempty"`
	Vocabulary string `json:"vocabulary"`
	Format     string `json:"format"`
}

// DefaultKeyer hashes the options into the key.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// OutputKey returns "output:<sha256>".
func (DefaultKeyer) OutputKey(inputHash string, opts OutputKeyOpts) string {
	return hashKey("output", inputHash, opts)
}

// ForestKey returns "forest:<sha256>".
func (DefaultKeyer) ForestKey(inputHash string, opts ForestKeyOpts) string {
	return hashKey("forest", inputHash, opts)
}

// ScopedKeyer prefixes every key of an inner Keyer, giving each server
// deployment or CLI user its own namespace in a shared backend.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "bricklayers:api:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix. A nil inner keyer means
// DefaultKeyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// OutputKey returns the prefixed output key.
func (k *ScopedKeyer) OutputKey(inputHash string, opts OutputKeyOpts) string {
	return k.prefix + k.inner.OutputKey(inputHash, opts)
}

// ForestKey returns the prefixed forest key.
func (k *ScopedKeyer) ForestKey(inputHash string, opts ForestKeyOpts) string {
	return k.prefix + k.inner.ForestKey(inputHash, opts)
}
