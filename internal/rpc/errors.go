package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"pos-system/internal/errs"
)

// ErrorKindKey is the trailer carrying the error kind, since several kinds
// share a status code.
const ErrorKindKey = "pos-error-kind"

var kindCodes = map[errs.Kind]codes.Code{
	errs.KindValidation:           codes.InvalidArgument,
	errs.KindConstraintViolation:  codes.AlreadyExists,
	errs.KindInsufficientStock:    codes.FailedPrecondition,
	errs.KindInsufficientPoints:   codes.FailedPrecondition,
	errs.KindPromotionCapExceeded: codes.ResourceExhausted,
	errs.KindOverlappingDiscount:  codes.FailedPrecondition,
	errs.KindOverRefund:           codes.OutOfRange,
	errs.KindImmutablePromotion:   codes.FailedPrecondition,
	errs.KindInvalidCredentials:   codes.Unauthenticated,
	errs.KindNotFound:             codes.NotFound,
	errs.KindNoPriceSet:           codes.FailedPrecondition,
	errs.KindRetryable:            codes.Aborted,
	errs.KindInternal:             codes.Internal,
}

func CodeOf(kind errs.Kind) codes.Code {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return codes.Unknown
}

// toStatus converts a domain error into a status error and records its kind
// in the response trailer.
func toStatus(ctx context.Context, err error) error {
	kind := errs.KindOf(err)
	_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorKindKey, string(kind)))

	msg := err.Error()
	if kind == errs.KindInternal {
		msg = "internal error"
	}
	return status.Error(CodeOf(kind), msg)
}

// FromStatus restores the domain error from a status error and the trailer
// received with it.
func FromStatus(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	if values := trailer.Get(ErrorKindKey); len(values) > 0 {
		if sentinel := errs.FromKind(errs.Kind(values[0])); sentinel != nil {
			return &remoteError{sentinel: sentinel, msg: status.Convert(err).Message()}
		}
	}
	return err
}

type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }
