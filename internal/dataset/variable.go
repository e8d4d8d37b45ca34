package dataset

import (
	"fmt"
	"math"
)

// Array is a dense row-major array.
type Array struct {
	// Shape is the length of each axis. A scalar has an empty shape and
	// one element.
	Shape []int

	// Elements holds the values, last axis varying fastest.
	Elements []float64
}

// Variable is a named array over an ordered list of dimensions.
//
// A scalar has no dimensions and a one-element backing array.
type Variable struct {
	// Name is the variable name.
	Name string

	// Dims lists the dimension names, outermost first.
	Dims []string

	// Data holds the values in row-major order.
	Data *Array

	// Attrs holds string attributes such as units.
	Attrs map[string]string
}

// NewVariable creates a variable over dims with the given shape. When
// values is nil the variable is zero-filled; otherwise its length must
// equal the product of shape.
func NewVariable(name string, dims []string, shape []int, values []float64) (*Variable, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("variable %q: %d dims but %d lengths", name, len(dims), len(shape))
	}
	n := 1
	for i, l := range shape {
		if l < 0 {
			return nil, fmt.Errorf("variable %q: negative length for dim %q", name, dims[i])
		}
		n *= l
	}
	if values != nil && len(values) != n {
		return nil, fmt.Errorf("variable %q: %d values for shape %v", name, len(values), shape)
	}

	v := &Variable{Name: name, Dims: append([]string(nil), dims...), Data: newDense(shape)}
	if values != nil {
		copy(v.Data.Elements, values)
	}
	return v, nil
}

// NewScalar creates a dimensionless variable.
func NewScalar(name string, value float64) *Variable {
	v := &Variable{Name: name, Data: newDense(nil)}
	v.Data.Elements[0] = value
	return v
}

// newDense allocates a zero array. Scalars get a single element.
func newDense(shape []int) *Array {
	n := 1
	for _, l := range shape {
		n *= l
	}
	return &Array{Shape: append([]int(nil), shape...), Elements: make([]float64, n)}
}

// Shape returns the length of each dimension. Scalars return nil.
func (v *Variable) Shape() []int {
	if len(v.Dims) == 0 {
		return nil
	}
	return v.Data.Shape
}

// Size returns the number of elements.
func (v *Variable) Size() int {
	return len(v.Data.Elements)
}

// Values returns the backing elements in row-major order.
func (v *Variable) Values() []float64 {
	return v.Data.Elements
}

// Scalar returns the value of a scalar variable.
func (v *Variable) Scalar() (float64, error) {
	if len(v.Dims) != 0 {
		return 0, fmt.Errorf("variable %q is not a scalar (dims %v)", v.Name, v.Dims)
	}
	return v.Data.Elements[0], nil
}

// HasDim reports whether dim is one of the variable's dimensions.
func (v *Variable) HasDim(dim string) bool {
	return v.axis(dim) >= 0
}

func (v *Variable) axis(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// Copy returns a deep copy of the variable.
func (v *Variable) Copy() *Variable {
	out := &Variable{
		Name:  v.Name,
		Dims:  append([]string(nil), v.Dims...),
		Data:  newDense(v.Shape()),
		Attrs: copyAttrs(v.Attrs),
	}
	copy(out.Data.Elements, v.Data.Elements)
	return out
}

// IsZero reports whether every element is exactly zero.
func (v *Variable) IsZero() bool {
	for _, e := range v.Data.Elements {
		if e != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether two variables have the same dims, shape and
// values, treating NaN as equal to NaN. Names and attributes are ignored.
func (v *Variable) Equal(o *Variable) bool {
	if !sameDims(v.Dims, o.Dims) || !sameShape(v.Shape(), o.Shape()) {
		return false
	}
	for i, a := range v.Data.Elements {
		b := o.Data.Elements[i]
		if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
			return false
		}
	}
	return true
}

// take selects the given positions along axis and returns a new variable
// with the same dims (the axis keeps len(idx) positions).
func (v *Variable) take(axis int, idx []int) *Variable {
	shape := v.Shape()
	outShape := append([]int(nil), shape...)
	outShape[axis] = len(idx)

	out := &Variable{
		Name:  v.Name,
		Dims:  append([]string(nil), v.Dims...),
		Data:  newDense(outShape),
		Attrs: copyAttrs(v.Attrs),
	}

	// outer is the number of blocks before the axis, inner the stride of
	// one step along it.
	outer, inner := 1, 1
	for i := 0; i < axis; i++ {
		outer *= shape[i]
	}
	for i := axis + 1; i < len(shape); i++ {
		inner *= shape[i]
	}

	src, dst := v.Data.Elements, out.Data.Elements
	for o := 0; o < outer; o++ {
		for k, j := range idx {
			from := (o*shape[axis] + j) * inner
			to := (o*len(idx) + k) * inner
			copy(dst[to:to+inner], src[from:from+inner])
		}
	}
	return out
}

// dropAxis selects a single position along axis and removes the dimension.
func (v *Variable) dropAxis(axis, pos int) *Variable {
	picked := v.take(axis, []int{pos})
	dims := append(append([]string(nil), v.Dims[:axis]...), v.Dims[axis+1:]...)
	shape := append(append([]int(nil), picked.Shape()[:axis]...), picked.Shape()[axis+1:]...)

	out := &Variable{Name: v.Name, Dims: dims, Data: newDense(shape), Attrs: picked.Attrs}
	copy(out.Data.Elements, picked.Data.Elements)
	return out
}

func sameDims(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
