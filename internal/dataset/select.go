package dataset

import (
	"fmt"
	"math"
)

// DropSel removes the positions whose labels are listed from dimension
// dim, for the coordinate and every variable defined over it. A label that
// is not present is an error.
func (d *Dataset) DropSel(dim string, labels []string) (*Dataset, error) {
	c, ok := d.coords[dim]
	if !ok {
		return nil, fmt.Errorf("drop labels: dimension %q not in dataset", dim)
	}

	drop := make(map[int]bool, len(labels))
	var missing []string
	for _, label := range labels {
		i, found := c.IndexOf(label)
		if !found {
			missing = append(missing, label)
			continue
		}
		drop[i] = true
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("drop labels: %v not found along %q", missing, dim)
	}

	keep := make([]int, 0, c.Len-len(drop))
	for i := 0; i < c.Len; i++ {
		if !drop[i] {
			keep = append(keep, i)
		}
	}
	return d.isel(dim, keep), nil
}

// SelRange keeps the positions of dim whose numeric label lies in
// [lo, hi], both ends included. Order is preserved.
func (d *Dataset) SelRange(dim string, lo, hi float64) (*Dataset, error) {
	c, ok := d.coords[dim]
	if !ok {
		return nil, fmt.Errorf("select range: dimension %q not in dataset", dim)
	}
	if !c.IsNumeric() {
		return nil, fmt.Errorf("select range: dimension %q has no numeric labels", dim)
	}
	if lo > hi {
		return nil, fmt.Errorf("select range: empty interval [%v, %v]", lo, hi)
	}

	var keep []int
	for i, v := range c.Numbers {
		if v >= lo && v <= hi {
			keep = append(keep, i)
		}
	}
	return d.isel(dim, keep), nil
}

// SelDrop selects the single position labelled label along dim and
// removes the dimension: variables over dim lose that axis, the
// coordinate is dropped, and variables without dim are kept as they are.
func (d *Dataset) SelDrop(dim, label string) (*Dataset, error) {
	c, ok := d.coords[dim]
	if !ok {
		return nil, fmt.Errorf("select: dimension %q not in dataset", dim)
	}
	pos, found := c.IndexOf(label)
	if !found {
		return nil, fmt.Errorf("select: label %q not found along %q", label, dim)
	}

	out := New()
	for k, v := range d.Attrs {
		out.Attrs[k] = v
	}
	for _, other := range d.dims {
		if other == dim {
			continue
		}
		out.dims = append(out.dims, other)
		out.coords[other] = d.coords[other].Copy()
	}
	for _, name := range d.order {
		v := d.vars[name]
		if axis := v.axis(dim); axis >= 0 {
			v = v.dropAxis(axis, pos)
		} else {
			v = v.Copy()
		}
		out.order = append(out.order, name)
		out.vars[name] = v
	}
	return out, nil
}

// LastLabel returns the label of the final position of dim.
func (d *Dataset) LastLabel(dim string) (string, error) {
	c, ok := d.coords[dim]
	if !ok {
		return "", fmt.Errorf("dimension %q not in dataset", dim)
	}
	if c.Len == 0 {
		return "", fmt.Errorf("dimension %q is empty", dim)
	}
	return c.Label(c.Len - 1), nil
}

// NumericBounds returns the smallest and largest numeric label of dim,
// ignoring NaN labels.
func (d *Dataset) NumericBounds(dim string) (lo, hi float64, err error) {
	c, ok := d.coords[dim]
	if !ok {
		return 0, 0, fmt.Errorf("dimension %q not in dataset", dim)
	}
	if !c.IsNumeric() {
		return 0, 0, fmt.Errorf("dimension %q has no numeric labels", dim)
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range c.Numbers {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("dimension %q has no labels", dim)
	}
	return lo, hi, nil
}

// isel keeps the given positions of dim in every variable and in the
// coordinate.
func (d *Dataset) isel(dim string, keep []int) *Dataset {
	out := New()
	for k, v := range d.Attrs {
		out.Attrs[k] = v
	}
	for _, other := range d.dims {
		out.dims = append(out.dims, other)
		if other == dim {
			out.coords[other] = d.coords[other].take(keep)
		} else {
			out.coords[other] = d.coords[other].Copy()
		}
	}
	for _, name := range d.order {
		v := d.vars[name]
		if axis := v.axis(dim); axis >= 0 {
			v = v.take(axis, keep)
		} else {
			v = v.Copy()
		}
		out.order = append(out.order, name)
		out.vars[name] = v
	}
	return out
}
