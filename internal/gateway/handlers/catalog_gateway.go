package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"pos-system/internal/database/models"
	catalog "pos-system/internal/services/catalog/handler"
)

type CatalogHTTPHandler struct {
	catalog *catalog.CatalogHandler
}

func NewCatalogHTTPHandler(catalog *catalog.CatalogHandler) *CatalogHTTPHandler {
	return &CatalogHTTPHandler{catalog: catalog}
}

type SetPriceRequest struct {
	Price     decimal.Decimal `json:"price"`
	ChangedOn *time.Time      `json:"changed_on,omitempty"`
}

type AdjustStockRequest struct {
	Delta int64 `json:"delta" binding:"required"`
}

type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

func parseBoolQuery(c *gin.Context, param string) bool {
	v, err := strconv.ParseBool(c.Query(param))
	return err == nil && v
}

// --- Products ---

func (h *CatalogHTTPHandler) CreateProduct(c *gin.Context) {
	var req catalog.CreateProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req, actor(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Product created", product))
}

func (h *CatalogHTTPHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context(), parseBoolQuery(c, "active"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Products retrieved", products))
}

func (h *CatalogHTTPHandler) GetProduct(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product retrieved", product))
}

func (h *CatalogHTTPHandler) GetProductBySKU(c *gin.Context) {
	product, err := h.catalog.GetProductBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product retrieved", product))
}

func (h *CatalogHTTPHandler) SetProductActive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	if err := h.catalog.SetProductActive(c.Request.Context(), id, *req.Active); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product updated", nil))
}

func (h *CatalogHTTPHandler) DeleteProduct(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product deleted", nil))
}

func (h *CatalogHTTPHandler) AdjustStock(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	product, err := h.catalog.AdjustStock(c.Request.Context(), id, req.Delta)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Stock adjusted", product))
}

// --- Prices ---

// SetPrice appends a price version. A changed_on in the past records a
// backfilled price instead of the current one.
func (h *CatalogHTTPHandler) SetPrice(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req SetPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	ctx := c.Request.Context()
	var (
		price *models.ProductPrice
		err   error
	)
	if req.ChangedOn != nil {
		price, err = h.catalog.BackfillPrice(ctx, id, req.Price, *req.ChangedOn, actor(c))
	} else {
		price, err = h.catalog.SetPrice(ctx, id, req.Price, actor(c))
	}
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Price recorded", price))
}

func (h *CatalogHTTPHandler) GetPrice(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if at := c.Query("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			badRequest(c, "Invalid at timestamp, expected RFC3339")
			return
		}
		price, err := h.catalog.PriceAt(ctx, id, t)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, successResponse("Price retrieved", price))
		return
	}

	price, err := h.catalog.CurrentPrice(ctx, id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Price retrieved", price))
}

func (h *CatalogHTTPHandler) PriceHistory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	prices, err := h.catalog.PriceHistory(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Price history retrieved", prices))
}

// --- Categories ---

func (h *CatalogHTTPHandler) CreateCategory(c *gin.Context) {
	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Category created", category))
}

func (h *CatalogHTTPHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Categories retrieved", categories))
}

func (h *CatalogHTTPHandler) DeleteCategory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Category deleted", nil))
}

func (h *CatalogHTTPHandler) ListCategoryProducts(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	products, err := h.catalog.ListCategoryProducts(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Category products retrieved", products))
}

func (h *CatalogHTTPHandler) AddProductToCategory(c *gin.Context) {
	categoryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return
	}

	if err := h.catalog.AddProductToCategory(c.Request.Context(), productID, categoryID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product added to category", nil))
}

func (h *CatalogHTTPHandler) RemoveProductFromCategory(c *gin.Context) {
	categoryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return
	}

	if err := h.catalog.RemoveProductFromCategory(c.Request.Context(), productID, categoryID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product removed from category", nil))
}
