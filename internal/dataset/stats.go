package dataset

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Stats summarizes the values of a variable.
type Stats struct {
	Count int     `json:"count"`
	NaN   int     `json:"nan"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Summarize computes Stats over the finite and infinite values of v,
// counting NaN separately. A variable made only of NaN reports zero
// min/max/mean.
func Summarize(v *Variable) Stats {
	vals := make([]float64, 0, v.Size())
	nan := 0
	for _, e := range v.Values() {
		if math.IsNaN(e) {
			nan++
			continue
		}
		vals = append(vals, e)
	}

	s := Stats{Count: v.Size(), NaN: nan}
	if len(vals) == 0 {
		return s
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	s.Mean = floats.Sum(vals) / float64(len(vals))
	return s
}
