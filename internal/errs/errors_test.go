package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"wrapped validation", fmt.Errorf("%w: units must be positive", ErrValidation), KindValidation},
		{"double wrapped over refund", fmt.Errorf("refund: %w", fmt.Errorf("%w: item 3", ErrOverRefund)), KindOverRefund},
		{"no price", fmt.Errorf("%w: product 7", ErrNoPriceSet), KindNoPriceSet},
		{"retryable", fmt.Errorf("commit: %w", ErrRetryable), KindRetryable},
		{"unknown", errors.New("boom"), KindInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("%w: 40001", ErrRetryable)))
	assert.False(t, IsRetryable(ErrPromotionCapExceeded))
}

func TestFromKind(t *testing.T) {
	for _, k := range kinds {
		assert.Equal(t, k.kind, KindOf(FromKind(k.kind)))
	}
	assert.Nil(t, FromKind(KindInternal))
	assert.Nil(t, FromKind("SOMETHING_ELSE"))
}
