package dataset

import (
	"fmt"
	"math"
)

// Merge combines datasets into one.
//
// Variables are the union of all inputs in first-seen order. A variable
// present in several inputs must have identical dims and shape; its values
// must agree wherever both are non-NaN, and NaN positions are filled from
// the other input. Coordinates shared by several inputs must be equal.
// Global attributes come from the first dataset that sets each key.
func Merge(sets ...*Dataset) (*Dataset, error) {
	out := New()
	for _, ds := range sets {
		if ds == nil {
			continue
		}
		for k, v := range ds.Attrs {
			if _, ok := out.Attrs[k]; !ok {
				out.Attrs[k] = v
			}
		}

		for _, dim := range ds.dims {
			c := ds.coords[dim]
			existing, ok := out.coords[dim]
			if !ok {
				out.dims = append(out.dims, dim)
				out.coords[dim] = c.Copy()
				continue
			}
			merged, err := mergeCoord(existing, c)
			if err != nil {
				return nil, err
			}
			out.coords[dim] = merged
		}

		for _, name := range ds.order {
			v := ds.vars[name]
			existing, ok := out.vars[name]
			if !ok {
				out.order = append(out.order, name)
				out.vars[name] = v.Copy()
				continue
			}
			if err := fillNoConflict(existing, v); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// mergeCoord reconciles two coordinates of the same dimension. An
// index-only coordinate takes the labels of a labelled one of the same
// length.
func mergeCoord(a, b *Coord) (*Coord, error) {
	if a.Len != b.Len {
		return nil, fmt.Errorf("merge: dimension %q has length %d and %d", a.Dim, a.Len, b.Len)
	}
	switch {
	case !a.HasLabels():
		return b.Copy(), nil
	case !b.HasLabels():
		return a, nil
	case !a.Equal(b):
		return nil, fmt.Errorf("merge: coordinate %q differs between datasets", a.Dim)
	}
	return a, nil
}

// fillNoConflict checks that dst and src agree and fills NaN positions of
// dst from src.
func fillNoConflict(dst, src *Variable) error {
	if !sameDims(dst.Dims, src.Dims) || !sameShape(dst.Shape(), src.Shape()) {
		return fmt.Errorf("merge: variable %q has dims %v%v and %v%v", dst.Name, dst.Dims, dst.Shape(), src.Dims, src.Shape())
	}
	for i, a := range dst.Data.Elements {
		b := src.Data.Elements[i]
		switch {
		case math.IsNaN(b):
		case math.IsNaN(a):
			dst.Data.Elements[i] = b
		case a != b:
			return fmt.Errorf("merge: conflicting values for variable %q", dst.Name)
		}
	}
	for k, v := range src.Attrs {
		if dst.Attrs == nil {
			dst.Attrs = make(map[string]string)
		}
		if _, ok := dst.Attrs[k]; !ok {
			dst.Attrs[k] = v
		}
	}
	return nil
}
