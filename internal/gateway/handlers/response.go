package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pos-system/internal/errs"
	"pos-system/internal/gateway/middleware"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(kind errs.Kind, message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
		Error:   string(kind),
	}
}

var kindStatus = map[errs.Kind]int{
	errs.KindValidation:           http.StatusBadRequest,
	errs.KindConstraintViolation:  http.StatusConflict,
	errs.KindInsufficientStock:    http.StatusUnprocessableEntity,
	errs.KindInsufficientPoints:   http.StatusUnprocessableEntity,
	errs.KindPromotionCapExceeded: http.StatusConflict,
	errs.KindOverlappingDiscount:  http.StatusUnprocessableEntity,
	errs.KindOverRefund:           http.StatusUnprocessableEntity,
	errs.KindImmutablePromotion:   http.StatusConflict,
	errs.KindInvalidCredentials:   http.StatusUnauthorized,
	errs.KindNotFound:             http.StatusNotFound,
	errs.KindNoPriceSet:           http.StatusUnprocessableEntity,
	errs.KindRetryable:            http.StatusServiceUnavailable,
	errs.KindInternal:             http.StatusInternalServerError,
}

// StatusOf is the HTTP status a failed request of the given kind answers with.
func StatusOf(kind errs.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// handleError answers with the status and kind of err. Internal errors are
// logged and their detail withheld.
func handleError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	c.Set(middleware.ErrorKindKey, string(kind))

	message := err.Error()
	if kind == errs.KindInternal {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled service error")
		message = "Internal server error"
	}
	c.AbortWithStatusJSON(StatusOf(kind), errorResponse(kind, message))
}

func badRequest(c *gin.Context, message string) {
	c.Set(middleware.ErrorKindKey, string(errs.KindValidation))
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(errs.KindValidation, message))
}

func parseIDParam(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+param)
		return 0, false
	}
	return id, true
}

// actor is the authenticated employee recorded as changed_by in audit rows.
func actor(c *gin.Context) *int64 {
	if id, ok := middleware.EmployeeID(c); ok {
		return &id
	}
	return nil
}
