// Package queuepb describes the queue.v1.QueueService gRPC contract. Every
// method takes and returns a google.protobuf.Struct holding the JSON shape of
// the matching REST resource.
package queuepb

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "queue.v1.QueueService"

// Method names.
const (
	MethodCreateQueue   = "CreateQueue"
	MethodGetQueue      = "GetQueue"
	MethodListQueues    = "ListQueues"
	MethodJoinQueue     = "JoinQueue"
	MethodAdvanceQueue  = "AdvanceQueue"
	MethodLeaveQueue    = "LeaveQueue"
	MethodListMyTickets = "ListMyTickets"
	MethodListWaiting   = "ListWaiting"
)

// FullMethod returns "/queue.v1.QueueService/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// QueueServiceServer is the server API for QueueService.
type QueueServiceServer interface {
	CreateQueue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetQueue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListQueues(context.Context, *structpb.Struct) (*structpb.Struct, error)
	JoinQueue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AdvanceQueue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LeaveQueue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMyTickets(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListWaiting(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(QueueServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(QueueServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(method),
			}
			h := func(ctx context.Context, req any) (any, error) {
				return call(srv.(QueueServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, h)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for QueueService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueueServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		handler(MethodCreateQueue, QueueServiceServer.CreateQueue),
		handler(MethodGetQueue, QueueServiceServer.GetQueue),
		handler(MethodListQueues, QueueServiceServer.ListQueues),
		handler(MethodJoinQueue, QueueServiceServer.JoinQueue),
		handler(MethodAdvanceQueue, QueueServiceServer.AdvanceQueue),
		handler(MethodLeaveQueue, QueueServiceServer.LeaveQueue),
		handler(MethodListMyTickets, QueueServiceServer.ListMyTickets),
		handler(MethodListWaiting, QueueServiceServer.ListWaiting),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "queue/v1/queue.proto",
}

// RegisterQueueServiceServer registers srv on s.
func RegisterQueueServiceServer(s grpc.ServiceRegistrar, srv QueueServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// QueueServiceClient calls QueueService over a client connection.
type QueueServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewQueueServiceClient creates a new client.
func NewQueueServiceClient(cc grpc.ClientConnInterface) *QueueServiceClient {
	return &QueueServiceClient{cc: cc}
}

// Call invokes method with in and returns the response struct.
func (c *QueueServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode converts a JSON-tagged value into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return out, nil
}

// Decode fills a JSON-tagged value from a Struct.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}
