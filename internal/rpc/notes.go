// Package rpc declares the chartkeeper.v1.Notes gRPC service. Requests and responses are google.protobuf.Struct.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "chartkeeper.v1.Notes"

// Full method names.
const (
	MethodGetNote      = "/" + ServiceName + "/GetNote"
	MethodCreateNote   = "/" + ServiceName + "/CreateNote"
	MethodPatchDraft   = "/" + ServiceName + "/PatchDraft"
	MethodAmend        = "/" + ServiceName + "/Amend"
	MethodFinalize     = "/" + ServiceName + "/Finalize"
	MethodDelete       = "/" + ServiceName + "/Delete"
	MethodRestore      = "/" + ServiceName + "/Restore"
	MethodPurge        = "/" + ServiceName + "/Purge"
	MethodListVersions = "/" + ServiceName + "/ListVersions"
)

// NotesServer is the server API of the Notes service.
type NotesServer interface {
	GetNote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateNote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PatchDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Amend(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Finalize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Restore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Purge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListVersions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedNotesServer can be embedded to satisfy NotesServer partially.
type UnimplementedNotesServer struct{}

func (UnimplementedNotesServer) GetNote(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetNote not implemented")
}
func (UnimplementedNotesServer) CreateNote(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateNote not implemented")
}
func (UnimplementedNotesServer) PatchDraft(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method PatchDraft not implemented")
}
func (UnimplementedNotesServer) Amend(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Amend not implemented")
}
func (UnimplementedNotesServer) Finalize(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Finalize not implemented")
}
func (UnimplementedNotesServer) Delete(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Delete not implemented")
}
func (UnimplementedNotesServer) Restore(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Restore not implemented")
}
func (UnimplementedNotesServer) Purge(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Purge not implemented")
}
func (UnimplementedNotesServer) ListVersions(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListVersions not implemented")
}

// RegisterNotesServer registers srv on s.
func RegisterNotesServer(s grpc.ServiceRegistrar, srv NotesServer) {
	s.RegisterService(&NotesServiceDesc, srv)
}

type unaryCall func(NotesServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(NotesServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(NotesServer), ctx, req.(*structpb.Struct))
		})
	}
}

// NotesServiceDesc is the grpc.ServiceDesc for the Notes service.
var NotesServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetNote", Handler: handler(MethodGetNote, NotesServer.GetNote)},
		{MethodName: "CreateNote", Handler: handler(MethodCreateNote, NotesServer.CreateNote)},
		{MethodName: "PatchDraft", Handler: handler(MethodPatchDraft, NotesServer.PatchDraft)},
		{MethodName: "Amend", Handler: handler(MethodAmend, NotesServer.Amend)},
		{MethodName: "Finalize", Handler: handler(MethodFinalize, NotesServer.Finalize)},
		{MethodName: "Delete", Handler: handler(MethodDelete, NotesServer.Delete)},
		{MethodName: "Restore", Handler: handler(MethodRestore, NotesServer.Restore)},
		{MethodName: "Purge", Handler: handler(MethodPurge, NotesServer.Purge)},
		{MethodName: "ListVersions", Handler: handler(MethodListVersions, NotesServer.ListVersions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chartkeeper/v1/notes.proto",
}

// NotesClient is the client API of the Notes service.
type NotesClient struct {
	cc grpc.ClientConnInterface
}

// NewNotesClient wraps a connection.
func NewNotesClient(cc grpc.ClientConnInterface) *NotesClient {
	return &NotesClient{cc: cc}
}

func (c *NotesClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NotesClient) GetNote(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetNote, in, opts...)
}

func (c *NotesClient) CreateNote(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCreateNote, in, opts...)
}

func (c *NotesClient) PatchDraft(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPatchDraft, in, opts...)
}

func (c *NotesClient) Amend(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodAmend, in, opts...)
}

func (c *NotesClient) Finalize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodFinalize, in, opts...)
}

func (c *NotesClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDelete, in, opts...)
}

func (c *NotesClient) Restore(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodRestore, in, opts...)
}

func (c *NotesClient) Purge(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPurge, in, opts...)
}

func (c *NotesClient) ListVersions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListVersions, in, opts...)
}
