// Package rpc exposes the simulation over gRPC. Messages use the well-known
// Struct and Empty types, so no generated stubs are needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "doppler.v1.Simulation"

	snapshotMethod = "/" + ServiceName + "/Snapshot"
	inputMethod    = "/" + ServiceName + "/Input"
)

// SimulationServer is the server API for the Simulation service.
type SimulationServer interface {
	// Snapshot returns the latest published engine snapshot.
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Input applies a control event of the form {"kind": ..., "value": ...}.
	Input(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// ServiceDesc describes the Simulation service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Snapshot", Handler: snapshotHandler},
		{MethodName: "Input", Handler: inputHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "doppler/v1/simulation.proto",
}

// RegisterSimulationServer registers srv on r.
func RegisterSimulationServer(r grpc.ServiceRegistrar, srv SimulationServer) {
	r.RegisterService(&ServiceDesc, srv)
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: snapshotMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SimulationServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func inputHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServer).Input(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: inputMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SimulationServer).Input(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
