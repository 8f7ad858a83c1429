// Package quiescence waits for an ingestion stream to stop producing data.
package quiescence

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

// ErrTimeout is returned when the stream did not settle before the timeout.
var ErrTimeout = errors.New("stream did not reach quiescence")

// Observation is one reading of a stream's progress marker.
type Observation struct {
	Value int64 // progress marker, e.g. a sample count or a modification time
	Ready bool  // false while the stream has not produced anything yet
	// ChangedAt, when known, is when Value last changed. It lets an already idle
	// stream settle without waiting a full stability window.
	ChangedAt time.Time
}

// Probe reads a stream's current progress.
type Probe func(ctx context.Context) (Observation, error)

type Options struct {
	Interval  time.Duration // between two probes
	StableFor time.Duration // how long Value must stay unchanged
	Timeout   time.Duration // overall bound
	Clock     clockwork.Clock
}

// Result describes a settled stream.
type Result struct {
	Value  int64
	Polls  int
	Waited time.Duration
}

// Wait polls probe until a ready observation kept the same Value for StableFor.
// It fails with ErrTimeout after Timeout, with the probe's error, or when ctx is done.
func Wait(ctx context.Context, probe Probe, opts Options) (Result, error) {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}

	start := clock.Now()
	var (
		res         Result
		seen        bool
		stableSince time.Time
	)
	for {
		obs, err := probe(ctx)
		if err != nil {
			return res, err
		}
		res.Polls++
		now := clock.Now()
		res.Waited = now.Sub(start)

		if obs.Ready {
			if !seen || obs.Value != res.Value {
				seen = true
				res.Value = obs.Value
				stableSince = now
				if !obs.ChangedAt.IsZero() && obs.ChangedAt.Before(now) {
					stableSince = obs.ChangedAt
				}
			}
			if now.Sub(stableSince) >= opts.StableFor {
				return res, nil
			}
		}
		if res.Waited >= opts.Timeout {
			return res, ErrTimeout
		}

		timer := clock.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, ctx.Err()
		case <-timer.Chan():
		}
	}
}
