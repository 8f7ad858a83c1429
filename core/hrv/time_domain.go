package hrv

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TimeFeatures are the time-domain columns, in order.
var TimeFeatures = []string{
	"mean_nni", "median_nni", "range_nni", "sdnn", "sdsd", "rmssd",
	"nni_50", "pnni_50", "nni_20", "pnni_20", "cvsd", "cvnni",
	"mean_hr", "min_hr", "max_hr", "std_hr",
}

// timeDomain computes the time-domain features of intervals given in milliseconds.
func timeDomain(rri []float64) []float64 {
	out := nanSlice(len(TimeFeatures))
	if len(rri) == 0 {
		return out
	}
	diff := successiveDiffs(rri)
	hr := make([]float64, len(rri))
	for i, v := range rri {
		hr[i] = 60000 / v
	}

	meanNN := stat.Mean(rri, nil)
	sdnn := sampleStdDev(rri)
	rmssd := math.NaN()
	if len(diff) > 0 {
		rmssd = math.Sqrt(floats.Dot(diff, diff) / float64(len(diff)))
	}
	nn50, nn20 := 0.0, 0.0
	for _, d := range diff {
		if math.Abs(d) > 50 {
			nn50++
		}
		if math.Abs(d) > 20 {
			nn20++
		}
	}

	out[0] = meanNN
	out[1] = median(rri)
	out[2] = floats.Max(rri) - floats.Min(rri)
	out[3] = sdnn
	out[4] = sampleStdDev(diff)
	out[5] = rmssd
	out[6] = nn50
	out[7] = nn50 / float64(len(rri)) * 100
	out[8] = nn20
	out[9] = nn20 / float64(len(rri)) * 100
	out[10] = rmssd / meanNN
	out[11] = sdnn / meanNN
	out[12] = stat.Mean(hr, nil)
	out[13] = floats.Min(hr)
	out[14] = floats.Max(hr)
	out[15] = sampleStdDev(hr)
	return finite(out)
}

func successiveDiffs(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	d := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		d[i-1] = x[i] - x[i-1]
	}
	return d
}

// sampleStdDev is the ddof=1 standard deviation, NaN under 2 values.
func sampleStdDev(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.StdDev(x, nil)
}

func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// finite maps infinities to NaN so that every missing feature looks the same downstream.
func finite(x []float64) []float64 {
	for i, v := range x {
		if math.IsInf(v, 0) {
			x[i] = math.NaN()
		}
	}
	return x
}
