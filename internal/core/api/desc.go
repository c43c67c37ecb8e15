package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wonderpush.segmenter.v1.Segmenter"

// Full method names.
const (
	ValidateMethod = "/" + ServiceName + "/Validate"
	MatchMethod    = "/" + ServiceName + "/Match"
)

// SegmenterServer is the server API of the segmenter service.
// Messages are well-known protobuf types so no generated package is needed.
// Requests carry a JSON object as bytes so numbers reach the decoder as
// written instead of as doubles.
type SegmenterServer interface {
	Validate(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	Match(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
}

// RegisterSegmenterServer registers srv on s.
func RegisterSegmenterServer(s grpc.ServiceRegistrar, srv SegmenterServer) {
	s.RegisterService(&segmenterServiceDesc, srv)
}

var segmenterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SegmenterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Validate", Handler: validateHandler},
		{MethodName: "Match", Handler: matchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wonderpush/segmenter/v1/segmenter.proto",
}

func validateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SegmenterServer).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SegmenterServer).Validate(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func matchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SegmenterServer).Match(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MatchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SegmenterServer).Match(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// SegmenterClient calls the segmenter service over conn.
type SegmenterClient struct {
	conn grpc.ClientConnInterface
}

// NewSegmenterClient creates a client.
func NewSegmenterClient(conn grpc.ClientConnInterface) *SegmenterClient {
	return &SegmenterClient{conn: conn}
}

// Validate checks a segment definition with the strict grammar.
func (c *SegmenterClient) Validate(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ValidateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Match evaluates a segment against a runtime snapshot.
func (c *SegmenterClient) Match(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, MatchMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
