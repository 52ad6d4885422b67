package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	promotions "pos-system/internal/services/promotions/handler"
)

type PromotionsHTTPHandler struct {
	promotions *promotions.PromotionsHandler
}

func NewPromotionsHTTPHandler(promotions *promotions.PromotionsHandler) *PromotionsHTTPHandler {
	return &PromotionsHTTPHandler{promotions: promotions}
}

func (h *PromotionsHTTPHandler) CreatePromotion(c *gin.Context) {
	var req promotions.PromotionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	promotion, err := h.promotions.CreatePromotion(c.Request.Context(), req, actor(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Promotion created", promotion))
}

func (h *PromotionsHTTPHandler) ListPromotions(c *gin.Context) {
	var productID int64
	if raw := c.Query("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "Invalid product_id")
			return
		}
		productID = id
	}

	list, err := h.promotions.ListPromotions(c.Request.Context(), productID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Promotions retrieved", list))
}

func (h *PromotionsHTTPHandler) GetPromotion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	promotion, err := h.promotions.GetPromotion(ctx, id)
	if err != nil {
		handleError(c, err)
		return
	}
	redeemed, err := h.promotions.RedeemedUnits(ctx, id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Promotion retrieved", gin.H{
		"promotion":      promotion,
		"redeemed_units": redeemed,
	}))
}

// UpdatePromotion always fails: promotions are replaced, never edited.
func (h *PromotionsHTTPHandler) UpdatePromotion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req promotions.PromotionInput
	_ = c.ShouldBindJSON(&req)

	if err := h.promotions.UpdatePromotion(c.Request.Context(), id, req); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Promotion updated", nil))
}

func (h *PromotionsHTTPHandler) DeactivatePromotion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.promotions.DeactivatePromotion(c.Request.Context(), id, actor(c)); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Promotion deactivated", nil))
}

func (h *PromotionsHTTPHandler) ActivatePromotion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.promotions.ActivatePromotion(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Promotion active", nil))
}

func (h *PromotionsHTTPHandler) ListAudit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.promotions.ListAudit(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Promotion audit retrieved", entries))
}
