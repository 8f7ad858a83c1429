package hrv

// peakWindow is how many samples on each side bound a peak's prominence.
const peakWindow = 5

// FindProminentPeaks returns the indices of local maxima above minY that rise more than
// threshold above the higher of the minima of the 5 samples before and the 5 samples after.
func FindProminentPeaks(sig []float64, threshold, minY float64) []int {
	var peaks []int
	for i := 1; i < len(sig)-1; i++ {
		if !(sig[i] > sig[i-1] && sig[i] > sig[i+1] && sig[i] > minY) {
			continue
		}
		left := minOf(sig[max(0, i-peakWindow):i])
		right := minOf(sig[i+1 : min(len(sig), i+1+peakWindow)])
		if sig[i]-max(left, right) > threshold {
			peaks = append(peaks, i)
		}
	}
	return peaks
}

func minOf(x []float64) float64 {
	m := x[0]
	for _, v := range x[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
