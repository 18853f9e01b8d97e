package engine

// Registry owns the placed components in insertion order
type Registry struct {
	components []*Component
	index      map[ComponentID]*Component
	nextID     ComponentID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		index:  make(map[ComponentID]*Component),
		nextID: 1,
	}
}

// Add places a new component at rest and returns it
func (r *Registry) Add(kind Kind, pos Vec2, extent, mass float64) *Component {
	c := &Component{
		ID:       r.nextID,
		Kind:     kind,
		Position: pos,
		Extent:   extent,
		Mass:     mass,
		State:    AtRest,
	}
	r.nextID++
	r.components = append(r.components, c)
	r.index[c.ID] = c
	return c
}

// Remove deletes a component; unknown IDs are ignored
func (r *Registry) Remove(id ComponentID) bool {
	if _, ok := r.index[id]; !ok {
		return false
	}
	delete(r.index, id)
	for i, c := range r.components {
		if c.ID == id {
			r.components = append(r.components[:i], r.components[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the component with the given ID, or nil
func (r *Registry) Get(id ComponentID) *Component {
	return r.index[id]
}

// All returns the live components in insertion order
func (r *Registry) All() []*Component {
	out := make([]*Component, len(r.components))
	copy(out, r.components)
	return out
}

// FindFirstOfKind returns the earliest placed component of a kind, or nil
func (r *Registry) FindFirstOfKind(kind Kind) *Component {
	for _, c := range r.components {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// OfKind returns every component of a kind in insertion order
func (r *Registry) OfKind(kind Kind) []*Component {
	var out []*Component
	for _, c := range r.components {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of live components
func (r *Registry) Len() int {
	return len(r.components)
}

// Clear removes every component. IDs keep counting up.
func (r *Registry) Clear() {
	r.components = nil
	r.index = make(map[ComponentID]*Component)
}
