package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	loyalty "pos-system/internal/services/loyalty/handler"
)

type LoyaltyHTTPHandler struct {
	loyalty *loyalty.LoyaltyHandler
}

func NewLoyaltyHTTPHandler(loyalty *loyalty.LoyaltyHandler) *LoyaltyHTTPHandler {
	return &LoyaltyHTTPHandler{loyalty: loyalty}
}

type RewardsSettingRequest struct {
	PointsPerDollar decimal.Decimal `json:"points_per_dollar"`
	DollarPerPoints decimal.Decimal `json:"dollar_per_points"`
}

// --- Customers ---

func (h *LoyaltyHTTPHandler) CreateCustomer(c *gin.Context) {
	var req loyalty.CreateCustomerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	customer, err := h.loyalty.CreateCustomer(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Customer created", customer))
}

func (h *LoyaltyHTTPHandler) GetCustomer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	customer, err := h.loyalty.GetCustomer(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Customer retrieved", customer))
}

func (h *LoyaltyHTTPHandler) FindCustomer(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		badRequest(c, "email query parameter is required")
		return
	}

	customer, err := h.loyalty.GetCustomerByEmail(c.Request.Context(), email)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Customer retrieved", customer))
}

// --- Rewards ---

func (h *LoyaltyHTTPHandler) SetRewardsSetting(c *gin.Context) {
	var req RewardsSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	setting, err := h.loyalty.SetRewardsSetting(c.Request.Context(), req.PointsPerDollar, req.DollarPerPoints)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Rewards setting recorded", setting))
}

func (h *LoyaltyHTTPHandler) CurrentRewards(c *gin.Context) {
	asOf := time.Now()
	if at := c.Query("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			badRequest(c, "Invalid at timestamp, expected RFC3339")
			return
		}
		asOf = t
	}

	setting, err := h.loyalty.CurrentRewards(c.Request.Context(), asOf)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Rewards setting retrieved", setting))
}

func (h *LoyaltyHTTPHandler) RewardsHistory(c *gin.Context) {
	settings, err := h.loyalty.RewardsHistory(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Rewards history retrieved", settings))
}
