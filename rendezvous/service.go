package rendezvous

import (
	"context"

	"github.com/relab/flooding"
	"google.golang.org/grpc"
)

const (
	serviceName  = "flooding.Rendezvous"
	joinMethod   = "/" + serviceName + "/Join"
	leaveMethod  = "/" + serviceName + "/Leave"
	serviceProto = "rendezvous"
)

// rendezvousServer is the server API of the rendezvous service.
type rendezvousServer interface {
	Join(context.Context, *flooding.JoinMsg) (*flooding.PeerListMsg, error)
	Leave(context.Context, *flooding.JoinMsg) (*flooding.PeerListMsg, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*rendezvousServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Join",
			Handler:    unaryHandler(joinMethod, rendezvousServer.Join),
		},
		{
			MethodName: "Leave",
			Handler:    unaryHandler(leaveMethod, rendezvousServer.Leave),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: serviceProto,
}

func unaryHandler(
	fullMethod string,
	call func(rendezvousServer, context.Context, *flooding.JoinMsg) (*flooding.PeerListMsg, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(flooding.JoinMsg)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(rendezvousServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(rendezvousServer), ctx, req.(*flooding.JoinMsg))
		}
		return interceptor(ctx, in, info, handler)
	}
}
