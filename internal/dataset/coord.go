package dataset

import (
	"fmt"
	"math"
	"strconv"
)

// Coord describes one dimension of a Dataset.
//
// Exactly one of Numbers or Strings is set when the dimension has labels.
// When both are nil the dimension is index-only: its labels are the
// positions 0..Len-1.
type Coord struct {
	// Dim is the dimension name.
	Dim string

	// Len is the number of positions along the dimension.
	Len int

	// Numbers holds numeric labels (e.g. years).
	Numbers []float64

	// Strings holds string labels (e.g. scenario names).
	Strings []string

	// Attrs holds string attributes of the coordinate variable.
	Attrs map[string]string
}

// NewIndexCoord creates a coordinate without labels.
func NewIndexCoord(dim string, n int) *Coord {
	return &Coord{Dim: dim, Len: n}
}

// NewNumericCoord creates a coordinate labelled by numbers.
func NewNumericCoord(dim string, values []float64) *Coord {
	return &Coord{Dim: dim, Len: len(values), Numbers: append([]float64(nil), values...)}
}

// NewStringCoord creates a coordinate labelled by strings.
func NewStringCoord(dim string, labels []string) *Coord {
	return &Coord{Dim: dim, Len: len(labels), Strings: append([]string(nil), labels...)}
}

// IsNumeric reports whether the coordinate has numeric labels.
func (c *Coord) IsNumeric() bool {
	return c.Numbers != nil
}

// IsString reports whether the coordinate has string labels.
func (c *Coord) IsString() bool {
	return c.Strings != nil
}

// HasLabels reports whether the coordinate carries labels at all.
func (c *Coord) HasLabels() bool {
	return c.IsNumeric() || c.IsString()
}

// Label returns the label at position i formatted as a string.
func (c *Coord) Label(i int) string {
	switch {
	case c.IsString():
		return c.Strings[i]
	case c.IsNumeric():
		return strconv.FormatFloat(c.Numbers[i], 'f', -1, 64)
	default:
		return strconv.Itoa(i)
	}
}

// Labels returns every label formatted as a string.
func (c *Coord) Labels() []string {
	out := make([]string, c.Len)
	for i := range out {
		out[i] = c.Label(i)
	}
	return out
}

// IndexOf finds the position of a label. Numeric coordinates parse the
// label as a number and compare exactly; index-only coordinates parse it
// as a position.
func (c *Coord) IndexOf(label string) (int, bool) {
	switch {
	case c.IsString():
		for i, s := range c.Strings {
			if s == label {
				return i, true
			}
		}
		return -1, false
	case c.IsNumeric():
		v, err := strconv.ParseFloat(label, 64)
		if err != nil {
			return -1, false
		}
		for i, n := range c.Numbers {
			if n == v {
				return i, true
			}
		}
		return -1, false
	default:
		i, err := strconv.Atoi(label)
		if err != nil || i < 0 || i >= c.Len {
			return -1, false
		}
		return i, true
	}
}

// Equal reports whether two coordinates have the same dimension, length
// and labels. Attributes are not compared.
func (c *Coord) Equal(o *Coord) bool {
	if c.Dim != o.Dim || c.Len != o.Len {
		return false
	}
	if c.IsNumeric() != o.IsNumeric() || c.IsString() != o.IsString() {
		return false
	}
	for i := range c.Numbers {
		if c.Numbers[i] != o.Numbers[i] && !(math.IsNaN(c.Numbers[i]) && math.IsNaN(o.Numbers[i])) {
			return false
		}
	}
	for i := range c.Strings {
		if c.Strings[i] != o.Strings[i] {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of the coordinate.
func (c *Coord) Copy() *Coord {
	out := &Coord{Dim: c.Dim, Len: c.Len, Attrs: copyAttrs(c.Attrs)}
	if c.Numbers != nil {
		out.Numbers = append([]float64(nil), c.Numbers...)
	}
	if c.Strings != nil {
		out.Strings = append([]string(nil), c.Strings...)
	}
	return out
}

// take returns a coordinate holding only the given positions, in order.
func (c *Coord) take(idx []int) *Coord {
	out := &Coord{Dim: c.Dim, Len: len(idx), Attrs: copyAttrs(c.Attrs)}
	if c.Numbers != nil {
		out.Numbers = make([]float64, len(idx))
		for i, j := range idx {
			out.Numbers[i] = c.Numbers[j]
		}
	}
	if c.Strings != nil {
		out.Strings = make([]string, len(idx))
		for i, j := range idx {
			out.Strings[i] = c.Strings[j]
		}
	}
	return out
}

// String returns a short description such as "year(165: 1850..2014)".
func (c *Coord) String() string {
	if c.Len == 0 || !c.HasLabels() {
		return fmt.Sprintf("%s(%d)", c.Dim, c.Len)
	}
	return fmt.Sprintf("%s(%d: %s..%s)", c.Dim, c.Len, c.Label(0), c.Label(c.Len-1))
}

func copyAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
