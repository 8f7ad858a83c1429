package hrv

import "math"

// PPG cleaning band, in Hz.
const (
	cleanLowCut  = 0.5
	cleanHighCut = 8.0
)

// biquad is a normalized second-order IIR section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
}

func butterworth(highPass bool, cutoff, fs float64) biquad {
	w0 := 2 * math.Pi * cutoff / fs
	cos, sin := math.Cos(w0), math.Sin(w0)
	alpha := sin / math.Sqrt2 // sin/2Q with Q = 1/sqrt(2)
	a0 := 1 + alpha

	var b0, b1, b2 float64
	if highPass {
		b0, b1, b2 = (1+cos)/2, -(1 + cos), (1+cos)/2
	} else {
		b0, b1, b2 = (1-cos)/2, 1-cos, (1-cos)/2
	}
	return biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: -2 * cos / a0, a2: (1 - alpha) / a0}
}

// apply filters x starting from the steady state for a constant input equal to x[0].
func (q biquad) apply(x []float64) []float64 {
	y := make([]float64, len(x))
	if len(x) == 0 {
		return y
	}
	gain := (q.b0 + q.b1 + q.b2) / (1 + q.a1 + q.a2)
	z2 := (q.b2 - q.a2*gain) * x[0]
	z1 := (q.b1-q.a1*gain)*x[0] + z2
	for i, v := range x {
		out := q.b0*v + z1
		z1 = q.b1*v - q.a1*out + z2
		z2 = q.b2*v - q.a2*out
		y[i] = out
	}
	return y
}

// filtfilt runs q forward then backward (zero phase), with odd-reflection padding at both ends.
func (q biquad) filtfilt(x []float64) []float64 {
	n := len(x)
	if n < 2 {
		return append([]float64(nil), x...)
	}
	pad := 9
	if pad > n-1 {
		pad = n - 1
	}
	ext := make([]float64, 0, n+2*pad)
	for i := pad; i > 0; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-pad; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	y := q.apply(ext)
	reverse(y)
	y = q.apply(y)
	reverse(y)
	return y[pad : pad+n]
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

// Clean band-passes the raw PPG signal (0.5-8 Hz) with zero-phase Butterworth sections.
func Clean(signal []float64, fs float64) []float64 {
	out := butterworth(true, cleanLowCut, fs).filtfilt(signal)
	if cleanHighCut < fs/2 {
		out = butterworth(false, cleanHighCut, fs).filtfilt(out)
	}
	return out
}
