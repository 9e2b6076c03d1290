package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/doppler-simulator/internal/logging"
	"github.com/signalsfoundry/doppler-simulator/internal/sim"
)

// Controller is the simulation handle the server drives. *sim.Runner
// satisfies it.
type Controller interface {
	Snapshot() sim.Snapshot
	Submit(ctx context.Context, ev sim.InputEvent) error
}

// Server implements SimulationServer on top of a Controller.
type Server struct {
	ctrl Controller
	log  logging.Logger
}

var _ SimulationServer = (*Server)(nil)

// NewServer constructs a Server. A nil logger discards output.
func NewServer(ctrl Controller, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{ctrl: ctrl, log: log}
}

func (s *Server) Snapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.ctrl == nil {
		return nil, ToStatusError(ErrNotReady)
	}
	out, err := EncodeSnapshot(s.ctrl.Snapshot())
	if err != nil {
		logging.LoggerFromContext(ctx, s.log).Error(ctx, "encode snapshot failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *Server) Input(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if s.ctrl == nil {
		return nil, ToStatusError(ErrNotReady)
	}
	ev, err := DecodeInput(in)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "rpc.Input", string(ev.Kind))
	defer span.End()

	if err := s.ctrl.Submit(ctx, ev); err != nil {
		span.RecordError(err)
		logging.LoggerFromContext(ctx, s.log).Warn(ctx, "input rejected",
			logging.String("kind", string(ev.Kind)),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}
	logging.LoggerFromContext(ctx, s.log).Debug(ctx, "input applied", logging.String("kind", string(ev.Kind)))
	return &emptypb.Empty{}, nil
}

// NewGRPCServer builds a grpc.Server with the Simulation service registered
// and the request-id, tracing and metrics interceptors chained in that order.
// metrics may be nil.
func NewGRPCServer(srv SimulationServer, log logging.Logger, metrics grpc.UnaryServerInterceptor, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if metrics != nil {
		interceptors = append(interceptors, metrics)
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}, opts...)

	gs := grpc.NewServer(serverOpts...)
	RegisterSimulationServer(gs, srv)
	return gs
}

// EncodeSnapshot converts snap to a Struct with the same field names as its
// JSON form.
func EncodeSnapshot(snap sim.Snapshot) (*structpb.Struct, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("convert snapshot: %w", err)
	}
	return out, nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(in *structpb.Struct) (sim.Snapshot, error) {
	var snap sim.Snapshot
	raw, err := protojson.Marshal(in)
	if err != nil {
		return snap, fmt.Errorf("convert snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// DecodeInput reads {"kind": string, "value": number} into an InputEvent.
// value may be omitted or null for kinds that do not carry one.
func DecodeInput(in *structpb.Struct) (sim.InputEvent, error) {
	fields := in.GetFields()
	kindVal, ok := fields["kind"]
	if !ok {
		return sim.InputEvent{}, fmt.Errorf("%w: kind is required", ErrInvalidRequest)
	}
	kind, ok := kindVal.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return sim.InputEvent{}, fmt.Errorf("%w: kind must be a string", ErrInvalidRequest)
	}

	var value *float64
	if v, present := fields["value"]; present {
		switch k := v.GetKind().(type) {
		case *structpb.Value_NullValue:
		case *structpb.Value_NumberValue:
			f := k.NumberValue
			value = &f
		default:
			return sim.InputEvent{}, fmt.Errorf("%w: value must be a number", ErrInvalidRequest)
		}
	}
	return sim.ParseInput(kind.StringValue, value)
}

// EncodeInput is the inverse of DecodeInput.
func EncodeInput(ev sim.InputEvent) (*structpb.Struct, error) {
	fields := map[string]any{"kind": string(ev.Kind)}
	if ev.Kind.NeedsValue() {
		fields["value"] = ev.Value
	}
	return structpb.NewStruct(fields)
}
