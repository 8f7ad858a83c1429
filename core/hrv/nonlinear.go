package hrv

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// NonlinearFeatures are the nonlinear-domain columns, in order.
var NonlinearFeatures = []string{"csi", "cvi", "modified_csi", "sampen"}

const (
	sampEnDimension = 2
	sampEnTolerance = 0.2 // times the interval standard deviation
)

// nonlinearDomain computes the Poincaré sympathetic/vagal indices and the sample entropy.
func nonlinearDomain(rri []float64) []float64 {
	out := nanSlice(len(NonlinearFeatures))
	if len(rri) < 3 {
		return out
	}
	sdnn := sampleStdDev(rri)
	sdsd := sampleStdDev(successiveDiffs(rri))
	sd1 := math.Sqrt(0.5 * sdsd * sdsd)
	sd2 := math.Sqrt(2*sdnn*sdnn - 0.5*sdsd*sdsd)
	t, l := 4*sd1, 4*sd2

	out[0] = l / t
	out[1] = math.Log10(l * t)
	out[2] = l * l / t
	out[3] = sampleEntropy(rri, sampEnDimension, sampEnTolerance*sdnn)
	return finite(out)
}

// sampleEntropy is -ln(A/B) where B and A count template pairs of length m and m+1 within
// Chebyshev distance r. NaN when either count is zero.
func sampleEntropy(x []float64, m int, r float64) float64 {
	n := len(x)
	if n <= m+1 || math.IsNaN(r) {
		return math.NaN()
	}
	var a, b float64
	for i := 0; i < n-m; i++ {
		for j := i + 1; j < n-m; j++ {
			if floats.Distance(x[i:i+m], x[j:j+m], math.Inf(1)) <= r {
				b++
				if math.Abs(x[i+m]-x[j+m]) <= r {
					a++
				}
			}
		}
	}
	if a == 0 || b == 0 {
		return math.NaN()
	}
	return -math.Log(a / b)
}
