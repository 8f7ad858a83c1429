package hrv

import (
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
)

// FrequencyFeatures are the frequency-domain columns, in order.
var FrequencyFeatures = []string{"power_lf", "power_hf", "total_power", "lf_hf_ratio"}

const (
	resampleRate = 4.0 // Hz
	welchSegment = 256
	minResampled = 8
)

type band struct{ lo, hi float64 }

var (
	bandLF    = band{0.04, 0.15}
	bandHF    = band{0.15, 0.4}
	bandTotal = band{0.0033, 0.4}
)

// frequencyDomain estimates LF/HF powers (ms^2) from the tachogram. All NaN when the segment
// is too short for a spectrum.
func frequencyDomain(peaks []time.Time, rri []float64) []float64 {
	out := nanSlice(len(FrequencyFeatures))
	if len(rri) < 3 {
		return out
	}

	// each interval is placed at the beat that closes it
	xs := make([]float64, 0, len(rri))
	ys := make([]float64, 0, len(rri))
	for i, v := range rri {
		x := peaks[i+1].Sub(peaks[0]).Seconds()
		if len(xs) > 0 && x <= xs[len(xs)-1] {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, v)
	}
	if len(xs) < 3 {
		return out
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return out
	}
	n := int(math.Floor((xs[len(xs)-1]-xs[0])*resampleRate)) + 1
	if n < minResampled {
		return out
	}
	series := make([]float64, n)
	for i := range series {
		series[i] = pl.Predict(xs[0] + float64(i)/resampleRate)
	}

	freqs, psd := welch(series, resampleRate, min(welchSegment, n))
	lf := bandPower(freqs, psd, bandLF)
	hf := bandPower(freqs, psd, bandHF)
	out[0] = lf
	out[1] = hf
	out[2] = bandPower(freqs, psd, bandTotal)
	if hf > 0 {
		out[3] = lf / hf
	}
	return finite(out)
}

// welch returns the one-sided power spectral density of x using Hann-windowed segments
// with 50% overlap, each segment mean-detrended.
func welch(x []float64, fs float64, nperseg int) ([]float64, []float64) {
	window := make([]float64, nperseg)
	var wss float64
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(nperseg))
		wss += window[i] * window[i]
	}
	scale := 1 / (fs * wss)

	fft := fourier.NewFFT(nperseg)
	bins := nperseg/2 + 1
	psd := make([]float64, bins)
	seg := make([]float64, nperseg)
	step := max(1, nperseg/2)
	count := 0
	for start := 0; start+nperseg <= len(x); start += step {
		mean := stat.Mean(x[start:start+nperseg], nil)
		for i := range seg {
			seg[i] = (x[start+i] - mean) * window[i]
		}
		coeffs := fft.Coefficients(nil, seg)
		for k, c := range coeffs {
			p := cmplx.Abs(c)
			p = p * p * scale
			if k > 0 && !(nperseg%2 == 0 && k == bins-1) {
				p *= 2
			}
			psd[k] += p
		}
		count++
	}

	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * fs / float64(nperseg)
		if count > 0 {
			psd[k] /= float64(count)
		}
	}
	return freqs, psd
}

// bandPower integrates the PSD over [lo, hi) with the trapezoidal rule.
func bandPower(freqs, psd []float64, b band) float64 {
	var fx, px []float64
	for i, f := range freqs {
		if f >= b.lo && f < b.hi {
			fx = append(fx, f)
			px = append(px, psd[i])
		}
	}
	if len(fx) < 2 {
		return 0
	}
	return integrate.Trapezoidal(fx, px)
}
