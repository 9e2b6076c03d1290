package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/doppler-simulator/internal/sim"
)

var (
	// ErrInvalidRequest marks a malformed request message.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotReady is returned when the server has no controller attached.
	ErrNotReady = errors.New("simulation not ready")
)

// ToStatusError maps simulator errors onto gRPC status codes. Errors that
// already carry a status pass through unchanged.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, sim.ErrUnknownInput),
		errors.Is(err, sim.ErrMissingValue):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, ErrNotReady),
		errors.Is(err, sim.ErrRunnerStopped):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
