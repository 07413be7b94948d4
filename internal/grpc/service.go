package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/mtr002/linkboard/internal/nats"
)

const (
	serviceName          = "linkboard.BatchService"
	submitBulkMethod     = "/" + serviceName + "/SubmitBulk"
	getBatchStatusMethod = "/" + serviceName + "/GetBatchStatus"
)

type SubmitBulkResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
}

type GetBatchStatusRequest struct {
	BatchID string `json:"batch_id"`
}

// BatchServiceServer is implemented by the worker process.
type BatchServiceServer interface {
	SubmitBulk(ctx context.Context, req *nats.BulkSubmissionMessage) (*SubmitBulkResponse, error)
	GetBatchStatus(ctx context.Context, req *GetBatchStatusRequest) (*nats.BulkStatusMessage, error)
}

func RegisterBatchServiceServer(s grpc.ServiceRegistrar, srv BatchServiceServer) {
	s.RegisterService(&batchServiceDesc, srv)
}

var batchServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitBulk", Handler: submitBulkHandler},
		{MethodName: "GetBatchStatus", Handler: getBatchStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "linkboard/batch",
}

func submitBulkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(nats.BulkSubmissionMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BatchServiceServer).SubmitBulk(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitBulkMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BatchServiceServer).SubmitBulk(ctx, req.(*nats.BulkSubmissionMessage))
	}
	return interceptor(ctx, in, info, handler)
}

func getBatchStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetBatchStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BatchServiceServer).GetBatchStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getBatchStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BatchServiceServer).GetBatchStatus(ctx, req.(*GetBatchStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}
