package landmark

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

// Message types sent by the landmark client.
const (
	TypeFrame = "frame"
	TypePing  = "ping"
	TypePong  = "pong"
)

var (
	ErrMalformedMessage = errors.New("malformed landmark message")
	ErrLandmarkCount    = errors.New("unexpected landmark count")
)

// Frame is one instant of facial geometry. Points holds count*3 values laid out x,y,z per landmark.
type Frame struct {
	Timestamp float64
	Points    []float32
}

type message struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	Landmarks [][]float64 `json:"landmarks"`
}

// DecodeMessage parses a client message. Pings return the TypePing kind and a zero Frame.
// Frames must carry exactly `count` finite [x, y, z] points.
func DecodeMessage(data []byte, count int) (string, Frame, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", Frame{}, errors.Wrap(ErrMalformedMessage, err.Error())
	}

	switch msg.Type {
	case TypePing:
		return TypePing, Frame{}, nil
	case TypeFrame, "":
		if msg.Landmarks == nil {
			return "", Frame{}, errors.Wrap(ErrMalformedMessage, "no landmarks")
		}
	default:
		return "", Frame{}, errors.Wrapf(ErrMalformedMessage, "unknown type %q", msg.Type)
	}

	if len(msg.Landmarks) != count {
		return "", Frame{}, errors.Wrapf(ErrLandmarkCount, "got %d, want %d", len(msg.Landmarks), count)
	}
	points := make([]float32, 0, count*3)
	for i, p := range msg.Landmarks {
		if len(p) != 3 {
			return "", Frame{}, errors.Wrapf(ErrMalformedMessage, "landmark %d has %d coordinates", i, len(p))
		}
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return "", Frame{}, errors.Wrapf(ErrMalformedMessage, "landmark %d is not finite", i)
			}
			points = append(points, float32(v))
		}
	}
	return TypeFrame, Frame{Timestamp: msg.Timestamp, Points: points}, nil
}
