package dataset

import "fmt"

// ZerosOver builds a zero-filled variable over dims, taking the length and
// labels of each dimension from the first source dataset that has a
// labelled coordinate for it, then from the first that has the dimension
// at all. It returns the variable and the coordinates it was built on, so
// callers can register them next to it.
//
// An empty dims yields a scalar zero.
func ZerosOver(name string, dims []string, sources ...*Dataset) (*Variable, []*Coord, error) {
	coords := make([]*Coord, len(dims))
	shape := make([]int, len(dims))
	for i, dim := range dims {
		c := lookupCoord(dim, sources)
		if c == nil {
			return nil, nil, fmt.Errorf("variable %q: dimension %q not found in any source dataset", name, dim)
		}
		coords[i] = c.Copy()
		shape[i] = c.Len
	}

	if len(dims) == 0 {
		return NewScalar(name, 0), nil, nil
	}
	v, err := NewVariable(name, dims, shape, nil)
	if err != nil {
		return nil, nil, err
	}
	return v, coords, nil
}

func lookupCoord(dim string, sources []*Dataset) *Coord {
	for _, ds := range sources {
		if ds != nil && ds.HasLabelledCoord(dim) {
			return ds.coords[dim]
		}
	}
	for _, ds := range sources {
		if ds == nil {
			continue
		}
		if c, ok := ds.coords[dim]; ok {
			return c
		}
	}
	return nil
}

// Equal reports whether two datasets hold the same variables (order
// ignored) with equal dims and values, and equal coordinates for every
// dimension they use.
func (d *Dataset) Equal(o *Dataset) bool {
	if d.Len() != o.Len() {
		return false
	}
	for _, name := range d.order {
		ov, ok := o.vars[name]
		if !ok || !d.vars[name].Equal(ov) {
			return false
		}
		for _, dim := range ov.Dims {
			if !d.coords[dim].Equal(o.coords[dim]) {
				return false
			}
		}
	}
	return true
}
