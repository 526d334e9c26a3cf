package grpc

import (
	"errors"
	"fmt"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/rates"
	"github.com/afriswift/settlement/internal/server/settlement"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors to gRPC status errors.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	var f *settlement.Failure
	if errors.As(err, &f) {
		return status.Error(failureCode(f), err.Error())
	}

	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
	case errors.Is(err, common.ErrAccountBlocked):
		return status.Error(codes.PermissionDenied, common.ErrAccountBlocked.Error())
	case errors.Is(err, common.ErrorAlreadyExists), errors.Is(err, common.ErrIdempotencyConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

func failureCode(f *settlement.Failure) codes.Code {
	switch f.Class {
	case settlement.ClassGating:
		switch {
		case errors.Is(f, settlement.ErrInvalidAmount),
			errors.Is(f, settlement.ErrSelfTransfer),
			errors.Is(f, rates.ErrUnknownPair):
			return codes.InvalidArgument
		case errors.Is(f, settlement.ErrNotEligible):
			return codes.PermissionDenied
		case errors.Is(f, settlement.ErrRecipientUnavailable):
			return codes.NotFound
		}
		return codes.FailedPrecondition
	case settlement.ClassRejected:
		if errors.Is(f, settlement.ErrAccountNotReady) {
			return codes.FailedPrecondition
		}
		return codes.Aborted
	case settlement.ClassCredential:
		return codes.Unavailable
	}
	return codes.Internal
}

// intentStatus reports a failed intent with its id so a client can look it
// up later.
func intentStatus(in *models.Intent, err error) error {
	st := toStatus(err)
	if in == nil || in.ID == "" {
		return st
	}
	s := status.Convert(st)
	return status.Error(s.Code(), fmt.Sprintf("%s (intent %s)", s.Message(), in.ID))
}
