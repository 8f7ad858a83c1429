package inferencesvc

import (
	"context"

	"github.com/trezcool/drowsiness/core/inference"
)

// ConstantPredictor scores every window the same. It stands in for the model server in development.
type ConstantPredictor float64

var _ inference.Predictor = ConstantPredictor(0)

func (p ConstantPredictor) Predict(context.Context, inference.Tensor, inference.Tensor) (float64, error) {
	return float64(p), nil
}
