package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "hive.admin.v1.Admin"

const (
	methodStatus     = "/" + ServiceName + "/Status"
	methodListOnline = "/" + ServiceName + "/ListOnline"
	methodKick       = "/" + ServiceName + "/Kick"
)

// Server is what Register expects.
type Server interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListOnline(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Kick(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Register adds the admin service to s.
func Register(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "ListOnline", Handler: listOnlineHandler},
		{MethodName: "Kick", Handler: kickHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hive/admin/v1/admin.proto",
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func listOnlineHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).ListOnline(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListOnline}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).ListOnline(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func kickHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Kick(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodKick}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Kick(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
