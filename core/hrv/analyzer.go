package hrv

import (
	"time"

	"github.com/pkg/errors"
)

type Options struct {
	SamplingRate  float64 // Hz
	PeakThreshold float64
	Alpha         float64 // anomaly significance level
	SegmentLength time.Duration
}

// DefaultOptions matches the wearable's 25 Hz stream and 2-minute segments.
func DefaultOptions() Options {
	return Options{SamplingRate: 25, PeakThreshold: 0.1, Alpha: 0.05, SegmentLength: 2 * time.Minute}
}

type Analyzer struct {
	opts Options
}

func NewAnalyzer(opts Options) *Analyzer {
	return &Analyzer{opts: opts}
}

// Analyze turns raw PPG samples into one feature row per retained segment: the 24 raw
// features followed by 5 anomaly columns per domain.
func (a *Analyzer) Analyze(samples []Sample) (Table, error) {
	valid := validSorted(samples)
	if minSamples := int(a.opts.SamplingRate * 2); len(valid) < minSamples {
		return Table{}, errors.Wrapf(ErrInsufficientData, "%d valid samples, need %d", len(valid), minSamples)
	}

	signal := make([]float64, len(valid))
	for i, s := range valid {
		signal[i] = s.Green
	}
	peakIdx := FindProminentPeaks(Clean(signal, a.opts.SamplingRate), a.opts.PeakThreshold, 0)
	peaks := make([]time.Time, len(peakIdx))
	for i, idx := range peakIdx {
		peaks[i] = valid[idx].Time
	}

	segs := Segments(peaks, a.opts.SegmentLength)
	if len(segs) == 0 {
		return Table{}, errors.Wrapf(ErrInsufficientData, "no segment with 2 peaks among %d peaks", len(peaks))
	}
	return a.table(peaks[0], segs), nil
}

func (a *Analyzer) table(t0 time.Time, segs []Segment) Table {
	tbl := Table{Columns: RawColumns()}
	for _, d := range Domains {
		for _, c := range AnomalyColumns {
			tbl.Columns = append(tbl.Columns, d.Name+"_"+c)
		}
	}

	domainValues := make([][][]float64, len(Domains)) // domain -> segment -> features
	for _, seg := range segs {
		rri := intervals(seg.Peaks)
		raw := [][]float64{timeDomain(rri), frequencyDomain(seg.Peaks, rri), nonlinearDomain(rri)}

		row := Row{Segment: seg.Index, Timestamp: seg.Start.Sub(t0).Seconds()}
		for i, vals := range raw {
			row.Values = append(row.Values, vals...)
			domainValues[i] = append(domainValues[i], vals)
		}
		tbl.Rows = append(tbl.Rows, row)
	}

	for i := range Domains {
		for r, scores := range anomalyScores(domainValues[i], a.opts.Alpha) {
			tbl.Rows[r].Values = append(tbl.Rows[r].Values, scores...)
		}
	}
	return tbl
}
