package rpc

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/doppler-simulator/internal/sim"
)

// Client is a thin typed wrapper over a connection to the Simulation service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens an insecure, traced connection to target. Extra options are
// appended after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}

// WithRequestID attaches id as the x-request-id metadata on outgoing calls
// made with the returned context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, id)
}

// Snapshot fetches and decodes the server's latest snapshot.
func (c *Client) Snapshot(ctx context.Context, opts ...grpc.CallOption) (sim.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, snapshotMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return sim.Snapshot{}, err
	}
	return DecodeSnapshot(out)
}

// Input sends ev and waits for the engine to apply it.
func (c *Client) Input(ctx context.Context, ev sim.InputEvent, opts ...grpc.CallOption) error {
	in, err := EncodeInput(ev)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	return c.cc.Invoke(ctx, inputMethod, in, new(emptypb.Empty), opts...)
}
