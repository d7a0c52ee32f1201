// Package gateway exposes QueueService as REST through a grpc-gateway mux.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"grpc-queue-service/internal/adapter/grpc/queuepb"
	"grpc-queue-service/internal/adapter/identity"
	"grpc-queue-service/pkg/logger"
)

// route binds an HTTP pattern to a QueueService method. Path parameters are
// copied into the request struct under the listed field names.
type route struct {
	method  string
	pattern string
	rpc     string
	params  map[string]string
	body    bool
}

var routes = []route{
	{http.MethodPost, "/v1/queues", queuepb.MethodCreateQueue, nil, true},
	{http.MethodGet, "/v1/queues", queuepb.MethodListQueues, nil, false},
	{http.MethodGet, "/v1/queues/{id}", queuepb.MethodGetQueue, map[string]string{"id": "queueId"}, false},
	{http.MethodPost, "/v1/queues/{id}/entries", queuepb.MethodJoinQueue, map[string]string{"id": "queueId"}, false},
	{http.MethodGet, "/v1/queues/{id}/entries", queuepb.MethodListWaiting, map[string]string{"id": "queueId"}, false},
	{http.MethodDelete, "/v1/queues/{id}/entries/{entryId}", queuepb.MethodLeaveQueue, map[string]string{"id": "queueId", "entryId": "entryId"}, false},
	{http.MethodPost, "/v1/queues/{id}/advance", queuepb.MethodAdvanceQueue, map[string]string{"id": "queueId"}, false},
	{http.MethodGet, "/v1/me/tickets", queuepb.MethodListMyTickets, nil, false},
}

// HeaderMatcher forwards the caller identity and request id headers as
// gRPC metadata on top of the default set.
func HeaderMatcher(key string) (string, bool) {
	switch k := strings.ToLower(key); k {
	case identity.MDUserID, identity.MDUserName, logger.RequestIDMetadataKey:
		return k, true
	}
	return runtime.DefaultHeaderMatcher(key)
}

// NewServeMux returns a gateway mux with the queue routes registered.
func NewServeMux(conn grpc.ClientConnInterface, opts ...runtime.ServeMuxOption) (*runtime.ServeMux, error) {
	opts = append([]runtime.ServeMuxOption{runtime.WithIncomingHeaderMatcher(HeaderMatcher)}, opts...)
	mux := runtime.NewServeMux(opts...)
	if err := Register(mux, conn); err != nil {
		return nil, err
	}
	return mux, nil
}

// Register adds the queue routes to mux, forwarding to conn.
func Register(mux *runtime.ServeMux, conn grpc.ClientConnInterface) error {
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, forward(mux, conn, rt)); err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

func forward(mux *runtime.ServeMux, conn grpc.ClientConnInterface, rt route) runtime.HandlerFunc {
	fullMethod := queuepb.FullMethod(rt.rpc)

	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		inbound, outbound := runtime.MarshalerForRequest(mux, r)

		ctx, err := runtime.AnnotateContext(ctx, mux, r, fullMethod, runtime.WithHTTPPathPattern(rt.pattern))
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}

		in := &structpb.Struct{Fields: map[string]*structpb.Value{}}
		if rt.body {
			if err := inbound.NewDecoder(r.Body).Decode(in); err != nil && err != io.EOF {
				runtime.HTTPError(ctx, mux, outbound, w, r, status.Errorf(codes.InvalidArgument, "%v", err))
				return
			}
			if in.Fields == nil {
				in.Fields = map[string]*structpb.Value{}
			}
		}
		for param, field := range rt.params {
			in.Fields[field] = structpb.NewStringValue(pathParams[param])
		}

		var md runtime.ServerMetadata
		out := new(structpb.Struct)
		err = conn.Invoke(ctx, fullMethod, in, out, grpc.Header(&md.HeaderMD), grpc.Trailer(&md.TrailerMD))
		ctx = runtime.NewServerMetadataContext(ctx, md)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}

		runtime.ForwardResponseMessage(ctx, mux, outbound, w, r, out)
	}
}
