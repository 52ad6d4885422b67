package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pos-system/internal/database/models"
	ledger "pos-system/internal/services/ledger/handler"
)

// Ledger records purchases and refunds. It is served by the in-process
// handler or by a remote ledger service.
type Ledger interface {
	CreatePurchase(ctx context.Context, in ledger.CreatePurchaseInput) (*ledger.Receipt, error)
	CreateRefund(ctx context.Context, purchaseID int64, items []ledger.RefundItemInput) (*ledger.RefundReceipt, error)
	GetPurchase(ctx context.Context, id int64) (*ledger.Receipt, error)
}

// LedgerQueries are the read and maintenance operations that always run
// against the local store.
type LedgerQueries interface {
	ListCustomerPurchases(ctx context.Context, customerID int64) ([]models.Purchase, error)
	ListRefunds(ctx context.Context, purchaseID int64) ([]models.Refund, error)
	RefundedUnits(ctx context.Context, purchaseID int64) (map[int64]int64, error)
	DeletePurchase(ctx context.Context, id int64) error
}

type LedgerHTTPHandler struct {
	ledger  Ledger
	queries LedgerQueries
}

func NewLedgerHTTPHandler(ledger Ledger, queries LedgerQueries) *LedgerHTTPHandler {
	return &LedgerHTTPHandler{
		ledger:  ledger,
		queries: queries,
	}
}

type CreateRefundRequest struct {
	Items []ledger.RefundItemInput `json:"items"`
}

// --- Purchases ---

func (h *LedgerHTTPHandler) CreatePurchase(c *gin.Context) {
	var req ledger.CreatePurchaseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	receipt, err := h.ledger.CreatePurchase(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Purchase recorded", receipt))
}

func (h *LedgerHTTPHandler) GetPurchase(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	receipt, err := h.ledger.GetPurchase(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Purchase retrieved", receipt))
}

func (h *LedgerHTTPHandler) DeletePurchase(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.queries.DeletePurchase(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Purchase deleted", nil))
}

func (h *LedgerHTTPHandler) ListCustomerPurchases(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	purchases, err := h.queries.ListCustomerPurchases(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Purchases retrieved", purchases))
}

// --- Refunds ---

func (h *LedgerHTTPHandler) CreateRefund(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	receipt, err := h.ledger.CreateRefund(c.Request.Context(), id, req.Items)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Refund recorded", receipt))
}

func (h *LedgerHTTPHandler) ListRefunds(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	refunds, err := h.queries.ListRefunds(ctx, id)
	if err != nil {
		handleError(c, err)
		return
	}
	refunded, err := h.queries.RefundedUnits(ctx, id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Refunds retrieved", gin.H{
		"refunds":        refunds,
		"refunded_units": refunded,
	}))
}
