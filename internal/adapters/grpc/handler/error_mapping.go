package handler

import (
	"context"
	"errors"

	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, roster.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, roster.ErrConfirmationRequired):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, roster.ErrRecordNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
