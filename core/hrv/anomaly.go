package hrv

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// AnomalyColumns are the per-domain columns appended by the anomaly pass, in order.
var AnomalyColumns = []string{"T2_Score", "SPE_Score", "df_chi", "ulc_spe", "Anomaly"}

// anomalyScores runs the MSPC-PCA pass over one domain: x holds one row per segment.
// It returns one row of AnomalyColumns values per segment.
func anomalyScores(x [][]float64, alpha float64) [][]float64 {
	n := len(x)
	out := make([][]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		// a lone segment cannot deviate from itself
		out[0] = []float64{0, 0, math.Inf(1), math.Inf(1), 0}
		return out
	}

	xs := standardize(x)
	_, k := xs.Dims()

	var svd mat.SVD
	var scores, spe []float64
	var var1 float64
	if svd.Factorize(xs, mat.SVDThin) {
		s := svd.Values(nil)
		var v mat.Dense
		svd.VTo(&v)
		pc := mat.Col(nil, 0, &v)
		var1 = s[0] * s[0] / float64(n-1)

		scores = make([]float64, n)
		spe = make([]float64, n)
		for i := 0; i < n; i++ {
			row := xs.RawRowView(i)
			var score float64
			for j := 0; j < k; j++ {
				score += row[j] * pc[j]
			}
			scores[i] = score
			for j := 0; j < k; j++ {
				r := row[j] - score*pc[j]
				spe[i] += r * r
			}
		}
	} else {
		scores = make([]float64, n)
		spe = make([]float64, n)
	}

	t2 := make([]float64, n)
	if var1 > 0 {
		for i, sc := range scores {
			t2[i] = sc * sc / var1
		}
	}
	nf := float64(n)
	ulcT2 := ((nf + 1) * (nf - 1) / (nf * (nf - 1))) * fQuantile(1-alpha, 1, nf-1)

	b, v := stat.PopMeanVariance(spe, nil)
	ulcSPE, dfChi := math.Inf(1), math.Inf(1)
	if b != 0 && v != 0 {
		dfChi = 2 * b * b / v
		ulcSPE = (v / (2 * b)) * distuv.ChiSquared{K: dfChi}.Quantile(1-alpha)
	}

	for i := 0; i < n; i++ {
		t2Score := math.Inf(1)
		if ulcT2 > 0 {
			t2Score = t2[i] / ulcT2
		}
		speScore := math.Inf(1)
		if ulcSPE > 0 {
			speScore = spe[i] / ulcSPE
		}
		flag := 0.0
		if t2[i] >= ulcT2 || spe[i] >= ulcSPE {
			flag = 1
		}
		out[i] = []float64{t2Score, speScore, dfChi, ulcSPE, flag}
	}
	return out
}

// standardize zero-fills NaNs then centers and scales each column by its population standard
// deviation. Constant columns become zero.
func standardize(x [][]float64) *mat.Dense {
	n, k := len(x), len(x[0])
	xs := mat.NewDense(n, k, nil)
	col := make([]float64, n)
	for j := 0; j < k; j++ {
		constant := true
		for i := 0; i < n; i++ {
			v := x[i][j]
			if math.IsNaN(v) {
				v = 0
			}
			col[i] = v
			if v != col[0] {
				constant = false
			}
		}
		if constant {
			continue
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		sd := math.Sqrt(variance)
		if sd == 0 {
			sd = 1
		}
		for i := 0; i < n; i++ {
			xs.Set(i, j, (col[i]-mean)/sd)
		}
	}
	return xs
}

// fQuantile is the inverse CDF of the F(d1, d2) distribution, derived from the Beta quantile.
func fQuantile(p, d1, d2 float64) float64 {
	b := distuv.Beta{Alpha: d1 / 2, Beta: d2 / 2}.Quantile(p)
	return d2 * b / (d1 * (1 - b))
}
