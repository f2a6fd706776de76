package index

import "math"

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	return cosineWithNorms(a, norm(a), b, norm(b))
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// cosineWithNorms avoids recomputing stored norms on every query.
func cosineWithNorms(q []float32, qNorm float64, v []float32, vNorm float64) float64 {
	if qNorm == 0 || vNorm == 0 || len(q) != len(v) {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	s := dot / (qNorm * vNorm)
	// clamp rounding error
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return s
}
