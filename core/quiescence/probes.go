package quiescence

import (
	"context"
	"time"
)

// CountProbe adapts a growing counter. The stream is ready once the count is non-zero.
func CountProbe(count func(ctx context.Context) (int64, error)) Probe {
	return func(ctx context.Context) (Observation, error) {
		n, err := count(ctx)
		if err != nil {
			return Observation{}, err
		}
		return Observation{Value: n, Ready: n > 0}, nil
	}
}

// ModTimeProbe adapts a "latest modification time" source. The stream is always ready;
// the time itself tells how long the stream has been idle.
func ModTimeProbe(latest func(ctx context.Context) (time.Time, error)) Probe {
	return func(ctx context.Context) (Observation, error) {
		t, err := latest(ctx)
		if err != nil {
			return Observation{}, err
		}
		return Observation{Value: t.UnixNano(), Ready: true, ChangedAt: t}, nil
	}
}
