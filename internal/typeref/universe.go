package typeref

// Universe is the set of named types produced by one provider load. Names
// are unique; the first Intern call for a name fixes the type's position in
// declaration order. Interning returns a stable *Ref, so a graph built in
// two passes (declare, then link) shares one node per name and pointer
// identity holds across the whole universe.
type Universe struct {
	byName map[string]*Ref
	order  []*Ref
}

// NewUniverse creates an empty universe.
func NewUniverse() *Universe {
	return &Universe{byName: make(map[string]*Ref)}
}

// Intern returns the Ref for name, creating an empty placeholder on first
// use. Callers fill the placeholder's fields in place.
func (u *Universe) Intern(name string) *Ref {
	if r, ok := u.byName[name]; ok {
		return r
	}
	r := &Ref{Name: name}
	u.byName[name] = r
	u.order = append(u.order, r)
	return r
}

// Lookup returns the Ref for name without creating one.
func (u *Universe) Lookup(name string) (*Ref, bool) {
	r, ok := u.byName[name]
	return r, ok
}

// Types returns the named types in declaration order.
func (u *Universe) Types() []*Ref {
	out := make([]*Ref, len(u.order))
	copy(out, u.order)
	return out
}

// Len returns the number of named types.
func (u *Universe) Len() int {
	return len(u.order)
}
