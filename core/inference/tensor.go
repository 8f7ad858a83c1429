// Package inference wraps the fatigue model behind a shape-checked service.
package inference

import (
	"math"

	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core/dataset"
)

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Size returns the number of elements implied by Shape.
func (t Tensor) Size() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t Tensor) validate(want ...int) error {
	if len(t.Shape) != len(want) {
		return errors.Errorf("tensor rank %d, want %d", len(t.Shape), len(want))
	}
	for i, d := range want {
		if t.Shape[i] != d {
			return errors.Errorf("tensor shape %v, want %v", t.Shape, want)
		}
	}
	if len(t.Data) != t.Size() {
		return errors.Errorf("tensor holds %d values for shape %v", len(t.Data), t.Shape)
	}
	return nil
}

// FaceTensor builds the (1, seqLen, frames, landmarks, 3) landmark input from a window.
func FaceTensor(w dataset.Window, framesPerShard, landmarks int) Tensor {
	return Tensor{
		Shape: []int{1, len(w.Shards), framesPerShard, landmarks, 3},
		Data:  w.Face(),
	}
}

// HRVTensor replicates one segment's feature vector across seqLen steps, giving a
// (1, seqLen, len(features)) tensor. Non-finite values become 0.
func HRVTensor(features []float64, seqLen int) Tensor {
	row := make([]float32, len(features))
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		row[i] = float32(v)
	}
	data := make([]float32, 0, seqLen*len(row))
	for i := 0; i < seqLen; i++ {
		data = append(data, row...)
	}
	return Tensor{Shape: []int{1, seqLen, len(features)}, Data: data}
}
