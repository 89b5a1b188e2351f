package energysystem

import "fmt"

// Value is a tagged numeric payload: either a scalar broadcast across every
// time step or a series with one entry per step.
type Value struct {
	scalar   float64
	series   []float64
	isSeries bool
}

// Scalar returns a Value that is v at every time step.
func Scalar(v float64) Value {
	return Value{scalar: v}
}

// Series returns a Value holding a copy of vs.
func Series(vs ...float64) Value {
	cp := make([]float64, len(vs))
	copy(cp, vs)
	return Value{series: cp, isSeries: true}
}

// IsSeries reports whether the value varies per time step.
func (v Value) IsSeries() bool {
	return v.isSeries
}

// Len returns the series length, or 0 for a scalar.
func (v Value) Len() int {
	return len(v.series)
}

// At returns the value at step t.
func (v Value) At(t int) float64 {
	if !v.isSeries {
		return v.scalar
	}
	return v.series[t]
}

// Floats expands the value to n entries.
func (v Value) Floats(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if v.isSeries && i < len(v.series) {
			out[i] = v.series[i]
		} else if !v.isSeries {
			out[i] = v.scalar
		}
	}
	return out
}

// fits reports whether the value can be indexed over n steps.
func (v Value) fits(n int) bool {
	return !v.isSeries || len(v.series) == n
}

func (v Value) String() string {
	if v.isSeries {
		return fmt.Sprint(v.series)
	}
	return fmt.Sprint(v.scalar)
}
