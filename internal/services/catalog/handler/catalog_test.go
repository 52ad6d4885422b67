package handler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-system/internal/cache"
	"pos-system/internal/database/dbtest"
	"pos-system/internal/database/models"
	"pos-system/internal/errs"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestHandler(t *testing.T, opts ...Option) *CatalogHandler {
	t.Helper()
	return NewCatalogHandler(dbtest.NewStore(t), opts...)
}

func TestCreateProduct(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	p, err := h.CreateProduct(ctx, CreateProductInput{Name: "Milk", SKU: "ABC", Stock: 100, Price: price("10.00")}, nil)
	require.NoError(t, err)
	assert.True(t, p.Active)

	current, err := h.CurrentPrice(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10").Equal(current.Price))

	_, err = h.CreateProduct(ctx, CreateProductInput{Name: "Other", SKU: "ABC"}, nil)
	assert.ErrorIs(t, err, errs.ErrConstraintViolation)

	_, err = h.CreateProduct(ctx, CreateProductInput{Name: "Neg", SKU: "N", Stock: -1}, nil)
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = h.CreateProduct(ctx, CreateProductInput{Name: "Neg", SKU: "N", Price: price("-1")}, nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestCurrentPrice_NoPriceSet(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	p, err := h.CreateProduct(ctx, CreateProductInput{Name: "Bread", SKU: "B"}, nil)
	require.NoError(t, err)

	_, err = h.CurrentPrice(ctx, p.ID)
	assert.ErrorIs(t, err, errs.ErrNoPriceSet)
}

func TestSetPrice_AppendsHistory(t *testing.T) {
	c := &clock{t: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	h := newTestHandler(t, WithClock(c.now))
	ctx := context.Background()
	p, err := h.CreateProduct(ctx, CreateProductInput{Name: "Eggs", SKU: "E", Price: price("3.00")}, nil)
	require.NoError(t, err)

	c.t = c.t.Add(24 * time.Hour)
	_, err = h.SetPrice(ctx, p.ID, decimal.RequireFromString("3.50"), nil)
	require.NoError(t, err)

	// An older-dated row never changes the current price.
	_, err = h.BackfillPrice(ctx, p.ID, decimal.RequireFromString("1.00"), c.t.Add(-72*time.Hour), nil)
	require.NoError(t, err)

	current, err := h.CurrentPrice(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.50").Equal(current.Price))

	history, err := h.PriceHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, decimal.RequireFromString("1").Equal(history[0].Price))
	assert.True(t, decimal.RequireFromString("3.5").Equal(history[2].Price))

	was, err := h.PriceAt(ctx, p.ID, c.t.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3").Equal(was.Price))

	_, err = h.SetPrice(ctx, 999, decimal.RequireFromString("1"), nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCurrentPrice_SameTimestampGoesToLastRow(t *testing.T) {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	h := newTestHandler(t, WithClock(func() time.Time { return at }))
	ctx := context.Background()
	p, err := h.CreateProduct(ctx, CreateProductInput{Name: "Tea", SKU: "T", Price: price("2")}, nil)
	require.NoError(t, err)
	_, err = h.SetPrice(ctx, p.ID, decimal.RequireFromString("2.25"), nil)
	require.NoError(t, err)

	current, err := h.CurrentPrice(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.25").Equal(current.Price))
}

func TestAdjustStock(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	p, err := h.CreateProduct(ctx, CreateProductInput{Name: "Jam", SKU: "J", Stock: 5}, nil)
	require.NoError(t, err)

	got, err := h.AdjustStock(ctx, p.ID, -3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Stock)

	_, err = h.AdjustStock(ctx, p.ID, -3)
	assert.ErrorIs(t, err, errs.ErrInsufficientStock)

	again, err := h.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Stock, "rejected adjustment leaves stock untouched")

	_, err = h.AdjustStock(ctx, 999, 1)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetProduct_UsesAndInvalidatesCache(t *testing.T) {
	mem := cache.NewMemory()
	h := newTestHandler(t, WithCache(mem))
	ctx := context.Background()
	p, err := h.CreateProduct(ctx, CreateProductInput{Name: "Oil", SKU: "O", Stock: 1}, nil)
	require.NoError(t, err)

	_, err = h.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	key := fmt.Sprintf("%s%d", CATALOG_CACHE_PREFIX, p.ID)
	assert.True(t, mem.Has(key))

	_, err = h.AdjustStock(ctx, p.ID, 4)
	require.NoError(t, err)
	assert.False(t, mem.Has(key))

	got, err := h.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Stock)

	bySKU, err := h.GetProductBySKU(ctx, "O")
	require.NoError(t, err)
	assert.Equal(t, p.ID, bySKU.ID)

	_, err = h.GetProductBySKU(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCategories(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	p, err := h.CreateProduct(ctx, CreateProductInput{Name: "Cheese", SKU: "C"}, nil)
	require.NoError(t, err)
	cat, err := h.CreateCategory(ctx, "dairy")
	require.NoError(t, err)

	_, err = h.CreateCategory(ctx, "dairy")
	assert.ErrorIs(t, err, errs.ErrConstraintViolation)

	require.NoError(t, h.AddProductToCategory(ctx, p.ID, cat.ID))
	assert.ErrorIs(t, h.AddProductToCategory(ctx, p.ID, cat.ID), errs.ErrConstraintViolation)
	assert.ErrorIs(t, h.AddProductToCategory(ctx, p.ID, 999), errs.ErrNotFound)

	products, err := h.ListCategoryProducts(ctx, cat.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Cheese", products[0].Name)

	require.NoError(t, h.RemoveProductFromCategory(ctx, p.ID, cat.ID))
	assert.ErrorIs(t, h.RemoveProductFromCategory(ctx, p.ID, cat.ID), errs.ErrNotFound)

	require.NoError(t, h.DeleteCategory(ctx, cat.ID))
	assert.ErrorIs(t, h.DeleteCategory(ctx, cat.ID), errs.ErrNotFound)
}

func TestDeleteProduct_RemovesOwnedRows(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	db := h.store.DB
	p, err := h.CreateProduct(ctx, CreateProductInput{Name: "Rice", SKU: "R", Price: price("1.5")}, nil)
	require.NoError(t, err)
	cat, err := h.CreateCategory(ctx, "grains")
	require.NoError(t, err)
	require.NoError(t, h.AddProductToCategory(ctx, p.ID, cat.ID))

	promo := models.Promotion{
		Name: "rice deal", ProductID: p.ID, Discount: decimal.NewFromInt(5),
		StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour), Active: true,
	}
	require.NoError(t, db.Create(&promo).Error)
	purchase := models.Purchase{PurchaseDate: time.Now()}
	require.NoError(t, db.Create(&purchase).Error)
	item := models.PurchaseItem{PurchaseID: purchase.ID, ProductID: &p.ID, Units: 1, PricePerUnit: decimal.RequireFromString("1.5")}
	require.NoError(t, db.Create(&item).Error)

	require.NoError(t, h.DeleteProduct(ctx, p.ID))

	_, err = h.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	var prices, links, promos int64
	require.NoError(t, db.Model(&models.ProductPrice{}).Count(&prices).Error)
	require.NoError(t, db.Model(&models.ProductCategory{}).Count(&links).Error)
	require.NoError(t, db.Model(&models.Promotion{}).Count(&promos).Error)
	assert.Zero(t, prices)
	assert.Zero(t, links)
	assert.Zero(t, promos)

	var sold models.PurchaseItem
	require.NoError(t, db.First(&sold, item.ID).Error)
	assert.Nil(t, sold.ProductID)
	assert.True(t, decimal.RequireFromString("1.5").Equal(sold.PricePerUnit))
}
