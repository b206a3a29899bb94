package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// AnalyticsServiceName は gRPC のサービス名です。
const AnalyticsServiceName = "hranalytics.v1.AnalyticsService"

// AnalyticsServiceServer は AnalyticsService のサーバー側インターフェースです。
// リクエストとレスポンスは google.protobuf.Struct で受け渡します。
type AnalyticsServiceServer interface {
	GetDashboard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AnalyticsServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// AnalyticsServiceDesc は AnalyticsService のサービス定義です。
var AnalyticsServiceDesc = grpc.ServiceDesc{
	ServiceName: AnalyticsServiceName,
	HandlerType: (*AnalyticsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetDashboard", Handler: unaryHandler("GetDashboard", AnalyticsServiceServer.GetDashboard)},
		{MethodName: "ListRecords", Handler: unaryHandler("ListRecords", AnalyticsServiceServer.ListRecords)},
		{MethodName: "ImportRecords", Handler: unaryHandler("ImportRecords", AnalyticsServiceServer.ImportRecords)},
		{MethodName: "AddRecord", Handler: unaryHandler("AddRecord", AnalyticsServiceServer.AddRecord)},
		{MethodName: "UpdateRecord", Handler: unaryHandler("UpdateRecord", AnalyticsServiceServer.UpdateRecord)},
		{MethodName: "DeleteRecord", Handler: unaryHandler("DeleteRecord", AnalyticsServiceServer.DeleteRecord)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hranalytics/v1/analytics.proto",
}

// RegisterAnalyticsServiceServer はサーバーに AnalyticsService を登録します。
func RegisterAnalyticsServiceServer(s grpc.ServiceRegistrar, srv AnalyticsServiceServer) {
	s.RegisterService(&AnalyticsServiceDesc, srv)
}

func unaryHandler(method string, call unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + AnalyticsServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(AnalyticsServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AnalyticsServiceClient は AnalyticsService のクライアントです。
type AnalyticsServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAnalyticsServiceClient は AnalyticsServiceClient を生成します。
func NewAnalyticsServiceClient(cc grpc.ClientConnInterface) *AnalyticsServiceClient {
	return &AnalyticsServiceClient{cc: cc}
}

// Call は指定したメソッドを呼び出します。
func (c *AnalyticsServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+AnalyticsServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
