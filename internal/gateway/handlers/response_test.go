package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-system/internal/errs"
	"pos-system/internal/gateway/middleware"
)

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
		kind   errs.Kind
	}{
		{fmt.Errorf("%w: bad", errs.ErrValidation), http.StatusBadRequest, errs.KindValidation},
		{fmt.Errorf("%w: dup", errs.ErrConstraintViolation), http.StatusConflict, errs.KindConstraintViolation},
		{errs.ErrInsufficientStock, http.StatusUnprocessableEntity, errs.KindInsufficientStock},
		{errs.ErrPromotionCapExceeded, http.StatusConflict, errs.KindPromotionCapExceeded},
		{errs.ErrInvalidCredentials, http.StatusUnauthorized, errs.KindInvalidCredentials},
		{errs.ErrNotFound, http.StatusNotFound, errs.KindNotFound},
		{errs.ErrRetryable, http.StatusServiceUnavailable, errs.KindRetryable},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, errs.KindInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			handleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, string(tt.kind), c.GetString(middleware.ErrorKindKey))

			var resp APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.kind), resp.Error)
			if tt.kind == errs.KindInternal {
				assert.Equal(t, "Internal server error", resp.Message)
			}
		})
	}
}

func TestStatusOf_CoversEveryKind(t *testing.T) {
	for _, kind := range []errs.Kind{
		errs.KindValidation, errs.KindConstraintViolation, errs.KindInsufficientStock,
		errs.KindInsufficientPoints, errs.KindPromotionCapExceeded, errs.KindOverlappingDiscount,
		errs.KindOverRefund, errs.KindImmutablePromotion, errs.KindInvalidCredentials,
		errs.KindNotFound, errs.KindNoPriceSet, errs.KindRetryable,
	} {
		assert.NotEqual(t, http.StatusInternalServerError, StatusOf(kind), kind)
	}
}
