package dataset

import (
	"fmt"
	"sort"
)

// Dataset is an ordered collection of variables sharing dimensions.
//
// The zero value is not usable; create datasets with New.
type Dataset struct {
	order  []string
	vars   map[string]*Variable
	dims   []string
	coords map[string]*Coord

	// Attrs holds global string attributes.
	Attrs map[string]string
}

// New creates an empty dataset.
func New() *Dataset {
	return &Dataset{
		vars:   make(map[string]*Variable),
		coords: make(map[string]*Coord),
		Attrs:  make(map[string]string),
	}
}

// Len returns the number of variables.
func (d *Dataset) Len() int {
	return len(d.order)
}

// Names returns the variable names in insertion order.
func (d *Dataset) Names() []string {
	return append([]string(nil), d.order...)
}

// Vars returns the variables in insertion order.
func (d *Dataset) Vars() []*Variable {
	out := make([]*Variable, len(d.order))
	for i, name := range d.order {
		out[i] = d.vars[name]
	}
	return out
}

// Var looks up a variable by name.
func (d *Dataset) Var(name string) (*Variable, bool) {
	v, ok := d.vars[name]
	return v, ok
}

// Has reports whether the dataset contains a variable.
func (d *Dataset) Has(name string) bool {
	_, ok := d.vars[name]
	return ok
}

// Dims returns the dimension names in the order they were first seen.
func (d *Dataset) Dims() []string {
	return append([]string(nil), d.dims...)
}

// Coord looks up the coordinate of a dimension.
func (d *Dataset) Coord(dim string) (*Coord, bool) {
	c, ok := d.coords[dim]
	return c, ok
}

// HasLabelledCoord reports whether dim has a coordinate with labels,
// i.e. a coordinate variable in file terms.
func (d *Dataset) HasLabelledCoord(dim string) bool {
	c, ok := d.coords[dim]
	return ok && c.HasLabels()
}

// Coords returns the coordinates in dimension order.
func (d *Dataset) Coords() []*Coord {
	out := make([]*Coord, len(d.dims))
	for i, dim := range d.dims {
		out[i] = d.coords[dim]
	}
	return out
}

// SetCoord adds or replaces a coordinate. Replacing a coordinate with one
// of a different length is rejected while variables still use the
// dimension.
func (d *Dataset) SetCoord(c *Coord) error {
	if old, ok := d.coords[c.Dim]; ok {
		if old.Len != c.Len && d.dimInUse(c.Dim) {
			return fmt.Errorf("coordinate %q: length %d conflicts with existing length %d", c.Dim, c.Len, old.Len)
		}
	} else {
		d.dims = append(d.dims, c.Dim)
	}
	d.coords[c.Dim] = c
	return nil
}

// Set adds or replaces a variable. Every dimension of v must either match
// the length of an existing coordinate or is registered as a new
// index-only coordinate.
func (d *Dataset) Set(v *Variable) error {
	shape := v.Shape()
	for i, dim := range v.Dims {
		if c, ok := d.coords[dim]; ok {
			if c.Len != shape[i] {
				return fmt.Errorf("variable %q: dim %q has length %d, dataset has %d", v.Name, dim, shape[i], c.Len)
			}
		}
	}
	for i, dim := range v.Dims {
		if _, ok := d.coords[dim]; !ok {
			d.coords[dim] = NewIndexCoord(dim, shape[i])
			d.dims = append(d.dims, dim)
		}
	}
	if _, ok := d.vars[v.Name]; !ok {
		d.order = append(d.order, v.Name)
	}
	d.vars[v.Name] = v
	return nil
}

func (d *Dataset) dimInUse(dim string) bool {
	for _, v := range d.vars {
		if v.HasDim(dim) {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the dataset.
func (d *Dataset) Copy() *Dataset {
	out := New()
	out.Attrs = copyAttrs(d.Attrs)
	if out.Attrs == nil {
		out.Attrs = make(map[string]string)
	}
	for _, dim := range d.dims {
		out.dims = append(out.dims, dim)
		out.coords[dim] = d.coords[dim].Copy()
	}
	for _, name := range d.order {
		out.order = append(out.order, name)
		out.vars[name] = d.vars[name].Copy()
	}
	return out
}

// dropCoord removes the coordinate of dim. Callers ensure no variable
// uses it.
func (d *Dataset) dropCoord(dim string) {
	if _, ok := d.coords[dim]; !ok {
		return
	}
	delete(d.coords, dim)
	for i, n := range d.dims {
		if n == dim {
			d.dims = append(d.dims[:i], d.dims[i+1:]...)
			break
		}
	}
}

// shell returns an empty dataset with the same coordinates and attributes.
func (d *Dataset) shell() *Dataset {
	out := New()
	for k, v := range d.Attrs {
		out.Attrs[k] = v
	}
	for _, dim := range d.dims {
		out.dims = append(out.dims, dim)
		out.coords[dim] = d.coords[dim].Copy()
	}
	return out
}

// DropVars returns a copy without the named variables. Naming a variable
// that does not exist is an error.
func (d *Dataset) DropVars(names ...string) (*Dataset, error) {
	drop := make(map[string]bool, len(names))
	var missing []string
	for _, n := range names {
		if !d.Has(n) {
			missing = append(missing, n)
		}
		drop[n] = true
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("cannot drop unknown variables: %v", missing)
	}

	out := d.shell()
	for _, name := range d.order {
		if !drop[name] {
			out.order = append(out.order, name)
			out.vars[name] = d.vars[name].Copy()
		}
	}
	return out, nil
}

// Subset returns a copy holding only the named variables, in the order
// given. Every name must exist.
func (d *Dataset) Subset(names []string) (*Dataset, error) {
	out := d.shell()
	var missing []string
	for _, name := range names {
		v, ok := d.vars[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if _, dup := out.vars[name]; dup {
			continue
		}
		out.order = append(out.order, name)
		out.vars[name] = v.Copy()
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("variables not in dataset: %v", missing)
	}
	return out, nil
}

// Split partitions the dataset by dimension: with holds every variable
// defined over dim, without holds the rest. without has no coordinate for
// dim, so it merges with datasets whose dim labels differ; every other
// coordinate is kept on both halves.
func (d *Dataset) Split(dim string) (with, without *Dataset) {
	with, without = d.shell(), d.shell()
	without.dropCoord(dim)
	for _, name := range d.order {
		v := d.vars[name].Copy()
		target := without
		if v.HasDim(dim) {
			target = with
		}
		target.order = append(target.order, name)
		target.vars[name] = v
	}
	return with, without
}
