package hrv

import "time"

// Segment is the group of peaks falling in one fixed-length slot of the grid anchored at the
// first peak. Index k covers [t0+k*length, t0+(k+1)*length).
type Segment struct {
	Index int
	Start time.Time
	Peaks []time.Time
}

// Segments groups peak times into grid slots and keeps the slots holding at least 2 peaks.
// Dropped slots leave a gap in Index; later slots keep their true position in time.
func Segments(peaks []time.Time, length time.Duration) []Segment {
	if len(peaks) == 0 || length <= 0 {
		return nil
	}
	t0 := peaks[0]
	var (
		segs []Segment
		cur  *Segment
	)
	flush := func() {
		if cur != nil && len(cur.Peaks) >= 2 {
			segs = append(segs, *cur)
		}
	}
	for _, p := range peaks {
		k := int(p.Sub(t0) / length)
		if cur == nil || k != cur.Index {
			flush()
			cur = &Segment{Index: k, Start: t0.Add(time.Duration(k) * length)}
		}
		cur.Peaks = append(cur.Peaks, p)
	}
	flush()
	return segs
}

// intervals returns the successive peak-to-peak intervals in milliseconds.
func intervals(peaks []time.Time) []float64 {
	if len(peaks) < 2 {
		return nil
	}
	rri := make([]float64, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		rri = append(rri, float64(peaks[i].Sub(peaks[i-1]))/float64(time.Millisecond))
	}
	return rri
}
