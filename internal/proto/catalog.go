package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The catalog speaks only well-known protobuf types, so the service is described
// here instead of being generated from a .proto file.

const (
	catalogServiceName = "bookstore.Catalog"

	listBooksMethod = "/" + catalogServiceName + "/ListBooks"
	getBookMethod   = "/" + catalogServiceName + "/GetBook"
)

type CatalogServer interface {
	ListBooks(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	GetBook(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error)
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&catalogServiceDesc, srv)
}

var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: catalogServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListBooks", Handler: listBooksHandler},
		{MethodName: "GetBook", Handler: getBookHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalog",
}

func listBooksHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).ListBooks(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listBooksMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CatalogServer).ListBooks(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getBookHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).GetBook(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getBookMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CatalogServer).GetBook(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}

type CatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func (c *CatalogClient) ListBooks(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, listBooksMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) GetBook(ctx context.Context, in *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getBookMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
