package errs

import "errors"

var (
	ErrValidation           = errors.New("validation error")
	ErrConstraintViolation  = errors.New("constraint violation")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInsufficientPoints   = errors.New("insufficient points")
	ErrPromotionCapExceeded = errors.New("promotion cap exceeded")
	ErrOverlappingDiscount  = errors.New("overlapping discount")
	ErrOverRefund           = errors.New("refund exceeds purchased units")
	ErrImmutablePromotion   = errors.New("promotion is immutable")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrNotFound             = errors.New("resource not found")
	ErrNoPriceSet           = errors.New("no price set")

	// ErrRetryable marks transient store conflicts (serialization failures,
	// deadlocks). It is the only kind worth retrying.
	ErrRetryable = errors.New("transient store conflict")
)

type Kind string

const (
	KindValidation           Kind = "VALIDATION_ERROR"
	KindConstraintViolation  Kind = "CONSTRAINT_VIOLATION"
	KindInsufficientStock    Kind = "INSUFFICIENT_STOCK"
	KindInsufficientPoints   Kind = "INSUFFICIENT_POINTS"
	KindPromotionCapExceeded Kind = "PROMOTION_CAP_EXCEEDED"
	KindOverlappingDiscount  Kind = "OVERLAPPING_DISCOUNT"
	KindOverRefund           Kind = "OVER_REFUND"
	KindImmutablePromotion   Kind = "IMMUTABLE_PROMOTION"
	KindInvalidCredentials   Kind = "INVALID_CREDENTIALS"
	KindNotFound             Kind = "NOT_FOUND"
	KindNoPriceSet           Kind = "NO_PRICE_SET"
	KindRetryable            Kind = "RETRYABLE"
	KindInternal             Kind = "INTERNAL"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrConstraintViolation, KindConstraintViolation},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrInsufficientPoints, KindInsufficientPoints},
	{ErrPromotionCapExceeded, KindPromotionCapExceeded},
	{ErrOverlappingDiscount, KindOverlappingDiscount},
	{ErrOverRefund, KindOverRefund},
	{ErrImmutablePromotion, KindImmutablePromotion},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrNotFound, KindNotFound},
	{ErrNoPriceSet, KindNoPriceSet},
	{ErrRetryable, KindRetryable},
}

// KindOf returns the machine readable kind of err. Errors outside the
// taxonomy are reported as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// FromKind returns the sentinel for a kind reported by a remote service.
// Unknown kinds yield nil.
func FromKind(kind Kind) error {
	for _, k := range kinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}
