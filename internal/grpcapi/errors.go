package grpcapi

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chungtau/mti-gateway/internal/model"
)

// ToStatus converts a domain error to a gRPC status error
func ToStatus(err error) error {
	if err == nil {
		return nil
	}

	var verr *model.ValidationError
	var perr *model.PersistenceError
	var derr *model.DeliveryError

	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, model.ErrTransactionNotFound), errors.Is(err, model.ErrMerchantNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &perr), errors.As(err, &derr):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, model.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
