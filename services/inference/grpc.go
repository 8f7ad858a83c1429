// Package inferencesvc provides fatigue model clients.
package inferencesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/inference"
)

const (
	serviceName   = "fatigue.v1.FatigueModel"
	predictMethod = "/" + serviceName + "/Predict"
)

// GRPCPredictor calls the model server. Requests carry both tensors in one frame
// (see EncodeTensors), responses the scalar score.
type GRPCPredictor struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

var _ inference.Predictor = (*GRPCPredictor)(nil)

func NewGRPCPredictor(conf core.ModelConfig, opts ...grpc.DialOption) (*GRPCPredictor, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(conf.MaxMessageSize),
			grpc.MaxCallSendMsgSize(conf.MaxMessageSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	conn, err := grpc.NewClient(conf.Address, append(dialOpts, opts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to model server at %s", conf.Address)
	}
	return &GRPCPredictor{conn: conn, timeout: conf.Timeout}, nil
}

func (p *GRPCPredictor) Predict(ctx context.Context, face, hrv inference.Tensor) (float64, error) {
	frame, err := EncodeTensors(face, hrv)
	if err != nil {
		return 0, err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out := new(wrapperspb.DoubleValue)
	if err = p.conn.Invoke(ctx, predictMethod, wrapperspb.Bytes(frame), out); err != nil {
		return 0, errors.Wrap(err, "calling model server")
	}
	return out.GetValue(), nil
}

func (p *GRPCPredictor) Close() error {
	return p.conn.Close()
}

// ModelServer is the server side of the fatigue model protocol.
type ModelServer interface {
	Predict(ctx context.Context, face, hrv inference.Tensor) (float64, error)
}

// RegisterModelServer serves srv under the fatigue model service name.
func RegisterModelServer(s grpc.ServiceRegistrar, srv ModelServer) {
	s.RegisterService(&modelServiceDesc, srv)
}

var modelServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ModelServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fatigue/v1/fatigue.proto",
}

func predictHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req interface{}) (interface{}, error) {
		tensors, err := DecodeTensors(req.(*wrapperspb.BytesValue).GetValue())
		if err != nil {
			return nil, err
		}
		if len(tensors) != 2 {
			return nil, errors.Errorf("got %d tensors, want 2", len(tensors))
		}
		score, err := srv.(ModelServer).Predict(ctx, tensors[0], tensors[1])
		if err != nil {
			return nil, err
		}
		return wrapperspb.Double(score), nil
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: predictMethod}
	return interceptor(ctx, in, info, handle)
}
