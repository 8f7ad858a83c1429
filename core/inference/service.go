package inference

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/metrics"
)

// Predictor scores one (face, hrv) window pair. Implementations must be safe for concurrent use.
type Predictor interface {
	Predict(ctx context.Context, face, hrv Tensor) (float64, error)
}

type Shape struct {
	SeqLen         int
	FramesPerShard int
	Landmarks      int
	Features       int
}

// ShapeFromConfig reads the model input dimensions from the pipeline settings.
func ShapeFromConfig(conf core.DrowsinessConfig) Shape {
	return Shape{
		SeqLen:         conf.SeqLen,
		FramesPerShard: conf.ShardSize,
		Landmarks:      conf.LandmarkCount,
		Features:       conf.FeatureCount,
	}
}

// Service is created once at startup and shared by every finish call.
type Service struct {
	model Predictor
	shape Shape
	clock clockwork.Clock
}

// NewService wraps model. A nil clock uses the real clock.
func NewService(model Predictor, shape Shape, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{model: model, shape: shape, clock: clock}
}

func (svc *Service) Shape() Shape {
	return svc.shape
}

// CheckFeatures fails fast when the HRV table width does not match the model input.
func (svc *Service) CheckFeatures(n int) error {
	if n != svc.shape.Features {
		return core.NewBadRequestError("HRV features do not match the model input",
			errors.Errorf("got %d features, want %d", n, svc.shape.Features))
	}
	return nil
}

// Predict validates both tensors against the model shape before scoring them.
func (svc *Service) Predict(ctx context.Context, face, hrv Tensor) (float64, error) {
	s := svc.shape
	if err := face.validate(1, s.SeqLen, s.FramesPerShard, s.Landmarks, 3); err != nil {
		return 0, core.NewInternalError("invalid landmark tensor", err)
	}
	if len(hrv.Shape) > 0 {
		if err := svc.CheckFeatures(hrv.Shape[len(hrv.Shape)-1]); err != nil {
			return 0, err
		}
	}
	if err := hrv.validate(1, s.SeqLen, s.Features); err != nil {
		return 0, core.NewInternalError("invalid HRV tensor", err)
	}

	start := svc.clock.Now()
	score, err := svc.model.Predict(ctx, face, hrv)
	metrics.InferenceDuration.Observe(svc.clock.Since(start).Seconds())
	if err != nil {
		return 0, core.NewInternalError("fatigue model failed", errors.Wrap(err, "predicting"))
	}
	return score, nil
}
