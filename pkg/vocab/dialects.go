package vocab

import (
	"fmt"
	"slices"
)

// Dialect names accepted by Dialect.
const (
	DialectPrusa      = "prusa"
	DialectOrca       = "orca"
	DialectCura       = "cura"
	DialectSimplify3D = "simplify3d"
	DialectAll        = "all"
)

// DefaultDialect is used when no vocabulary is configured.
const DefaultDialect = DialectAll

// Dialects returns the names of the built-in vocabularies.
func Dialects() []string {
	return []string{DialectAll, DialectPrusa, DialectOrca, DialectCura, DialectSimplify3D}
}

// Dialect returns a fresh copy of the named built-in vocabulary.
func Dialect(name string) (*Vocabulary, error) {
	switch name {
	case DialectPrusa:
		return Prusa(), nil
	case DialectOrca:
		return Orca(), nil
	case DialectCura:
		return Cura(), nil
	case DialectSimplify3D:
		return Simplify3D(), nil
	case DialectAll, "":
		return All(), nil
	}
	return nil, fmt.Errorf("unknown dialect %q (valid: %v)", name, Dialects())
}

// Label-object macros emitted by most slicers when firmware object
// exclusion is enabled.
const (
	klipperObjectStart = "EXCLUDE_OBJECT_START NAME=*"
	klipperObjectStop  = "EXCLUDE_OBJECT_END*"
)

// Prusa returns the PrusaSlicer/SuperSlicer vocabulary.
func Prusa() *Vocabulary {
	return &Vocabulary{
		Name:              DialectPrusa,
		OuterPerimeter:    []string{"TYPE:External perimeter"},
		InnerPerimeter:    []string{"TYPE:Perimeter", "TYPE:Internal perimeter"},
		OverhangPerimeter: []string{"TYPE:Overhang perimeter"},
		WipeStart:         []string{"WIPE_START"},
		WipeEnd:           []string{"WIPE_END"},
		LayerChange:       []string{"LAYER_CHANGE"},
		ObjectStart:       []string{"printing object *", "M486 S*", klipperObjectStart},
		ObjectStop:        []string{"stop printing object *", "M486 S-1", klipperObjectStop},
		FeaturePrefixes:   []string{"TYPE:"},
	}
}

// Orca returns the OrcaSlicer/Bambu Studio vocabulary.
func Orca() *Vocabulary {
	return &Vocabulary{
		Name:              DialectOrca,
		OuterPerimeter:    []string{"TYPE:Outer wall", "FEATURE: Outer wall"},
		InnerPerimeter:    []string{"TYPE:Inner wall", "FEATURE: Inner wall"},
		OverhangPerimeter: []string{"TYPE:Overhang wall", "FEATURE: Overhang wall"},
		WipeStart:         []string{"WIPE_START"},
		WipeEnd:           []string{"WIPE_END"},
		LayerChange:       []string{"LAYER_CHANGE"},
		ObjectStart: []string{
			"start printing object, unique label id: *",
			"printing object *",
			klipperObjectStart,
		},
		ObjectStop: []string{
			"stop printing object, unique label id: *",
			"stop printing object *",
			klipperObjectStop,
		},
		FeaturePrefixes: []string{"TYPE:", "FEATURE:"},
	}
}

// Cura returns the UltiMaker Cura vocabulary.
func Cura() *Vocabulary {
	return &Vocabulary{
		Name:            DialectCura,
		OuterPerimeter:  []string{"TYPE:WALL-OUTER"},
		InnerPerimeter:  []string{"TYPE:WALL-INNER"},
		LayerChange:     []string{"LAYER:*"},
		ObjectStart:     []string{"MESH:*", klipperObjectStart},
		ObjectStop:      []string{"MESH:NONMESH", klipperObjectStop},
		FeaturePrefixes: []string{"TYPE:"},
	}
}

// Simplify3D returns the Simplify3D vocabulary.
func Simplify3D() *Vocabulary {
	return &Vocabulary{
		Name:           DialectSimplify3D,
		OuterPerimeter: []string{"outer perimeter"},
		InnerPerimeter: []string{"inner perimeter"},
		LayerChange:    []string{"layer *"},
		OtherFeatures: []string{
			"infill", "solid layer", "support", "dense support", "skirt",
			"gap fill", "bridge", "prime pillar", "ooze shield",
		},
	}
}

// All returns the union of every built-in dialect.
func All() *Vocabulary {
	return Merge(DialectAll, Prusa(), Orca(), Cura(), Simplify3D())
}

// IsDialect reports whether name is a built-in dialect.
func IsDialect(name string) bool {
	return slices.Contains(Dialects(), name)
}
