package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wonderpush/segmenter/internal/types"
)

// Auth errors are mapped in the auth interceptor.

// toStatus maps a handler error to a gRPC status.
// Segment errors map to INVALID_ARGUMENT, missing catalogue rows to NOT_FOUND,
// context timeouts to DEADLINE_EXCEEDED and anything else to UNAVAILABLE.
func toStatus(err error) error {
	switch {
	case errors.Is(err, types.ErrBadInput),
		errors.Is(err, types.ErrUnknownCriterion),
		errors.Is(err, types.ErrUnknownValue),
		errors.Is(err, types.ErrSegmentTooLarge):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrSegmentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}
