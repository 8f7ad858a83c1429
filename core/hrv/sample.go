// Package hrv computes heart-rate-variability features from raw PPG samples.
package hrv

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ErrInsufficientData is returned when the PPG stream cannot produce a single HRV segment.
var ErrInsufficientData = errors.New("insufficient PPG data for HRV analysis")

// Sample is one PPG reading pushed by the wearable.
type Sample struct {
	Time    time.Time
	Green   float64
	IsError bool
}

// validSorted drops flagged samples and orders the rest by time.
func validSorted(samples []Sample) []Sample {
	valid := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if !s.IsError {
			valid = append(valid, s)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Time.Before(valid[j].Time) })
	return valid
}
