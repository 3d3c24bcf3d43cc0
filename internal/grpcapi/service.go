// Package grpcapi exposes merchant notifications over gRPC. The service is
// described by hand on top of protobuf well-known types, so no generated code
// is needed:
//
//	service payflow.v1.Notifications {
//	  rpc Subscribe(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	  rpc GetTransaction(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName          = "payflow.v1.Notifications"
	SubscribeMethod      = "/" + ServiceName + "/Subscribe"
	GetTransactionMethod = "/" + ServiceName + "/GetTransaction"
	TransactionIDField   = "transactionId"
)

// NotificationsServer is the server API for the Notifications service.
type NotificationsServer interface {
	Subscribe(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	GetTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(NotificationsServer).Subscribe(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

func getTransactionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotificationsServer).GetTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetTransactionMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NotificationsServer).GetTransaction(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotificationsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetTransaction", Handler: getTransactionHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "payflow/v1/notifications.proto",
}

// Client is a thin client for the Notifications service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Subscribe(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], SubscribeMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *Client) GetTransaction(ctx context.Context, transactionID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{TransactionIDField: transactionID})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetTransactionMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
