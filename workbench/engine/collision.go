package engine

import "fmt"

// Overlaps reports whether two circular footprints intersect: the distance
// between centers is less than the average of the extents.
func Overlaps(a, b *Component) bool {
	return Distance(a.Position, b.Position) < (a.Extent+b.Extent)/2
}

// OverlappingOfKind returns the first component of kind that overlaps c, or nil
func OverlappingOfKind(c *Component, others []*Component, kind Kind) *Component {
	for _, o := range others {
		if o.ID == c.ID || o.Kind != kind {
			continue
		}
		if Overlaps(c, o) {
			return o
		}
	}
	return nil
}

// CountOverlaps returns how many other components overlap c
func CountOverlaps(c *Component, others []*Component) int {
	n := 0
	for _, o := range others {
		if o.ID != c.ID && Overlaps(c, o) {
			n++
		}
	}
	return n
}

// RecomputeConstraints builds the full collision constraint set from scratch
func RecomputeConstraints(components []*Component) []Constraint {
	constraints := []Constraint{}
	for i := 0; i < len(components); i++ {
		for j := i + 1; j < len(components); j++ {
			a, b := components[i], components[j]
			if !Overlaps(a, b) {
				continue
			}
			constraints = append(constraints, Constraint{
				Kind:    "collision",
				A:       a.ID,
				B:       b.ID,
				Message: fmt.Sprintf("%s #%d overlaps %s #%d", a.Kind, a.ID, b.Kind, b.ID),
			})
		}
	}
	return constraints
}
