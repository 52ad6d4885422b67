package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pos-system/internal/cache"
	"pos-system/internal/database"
	"pos-system/internal/database/models"
	"pos-system/internal/errs"
	"pos-system/internal/history"
)

const (
	CATALOG_CACHE_PREFIX = "catalog:product:"
	CATALOG_SKU_PREFIX   = "catalog:sku:"
)

// --- Handler ---

type CatalogHandler struct {
	store *database.Store
	cache cache.Cache
	log   *logrus.Entry
	now   func() time.Time
}

type Option func(*CatalogHandler)

func WithCache(c cache.Cache) Option {
	return func(h *CatalogHandler) { h.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(h *CatalogHandler) { h.now = now }
}

func NewCatalogHandler(store *database.Store, opts ...Option) *CatalogHandler {
	h := &CatalogHandler{
		store: store,
		cache: cache.Nop{},
		log:   logrus.WithField("service", "catalog"),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *CatalogHandler) InvalidateProductCaches(ctx context.Context, products ...models.Product) {
	for _, p := range products {
		keys := []string{fmt.Sprintf("%s%d", CATALOG_CACHE_PREFIX, p.ID), CATALOG_SKU_PREFIX + p.SKU}
		if err := h.cache.Del(ctx, keys...); err != nil {
			h.log.WithError(err).WithField("product_id", p.ID).Warn("Failed to invalidate product cache")
		}
	}
}

// -- Products --

type CreateProductInput struct {
	Name        string           `json:"name"`
	Description *string          `json:"description"`
	SKU         string           `json:"sku"`
	Stock       int64            `json:"stock"`
	Price       *decimal.Decimal `json:"price"`
}

func (h *CatalogHandler) CreateProduct(ctx context.Context, in CreateProductInput, actor *int64) (*models.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)
	if in.Name == "" || in.SKU == "" {
		return nil, fmt.Errorf("%w: product name and sku are required", errs.ErrValidation)
	}
	if in.Stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", errs.ErrValidation)
	}
	if in.Price != nil {
		if err := validatePrice(*in.Price); err != nil {
			return nil, err
		}
	}

	now := h.now()
	product := models.Product{
		Name:        in.Name,
		Description: in.Description,
		SKU:         in.SKU,
		Stock:       in.Stock,
		Active:      true,
		CreatedAt:   now,
	}

	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Product{}).Where("sku = ?", in.SKU).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: sku %q already exists", errs.ErrConstraintViolation, in.SKU)
		}
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		if in.Price == nil {
			return nil
		}
		return tx.Create(&models.ProductPrice{
			ProductID: product.ID,
			Price:     *in.Price,
			ChangedOn: now,
			ChangedBy: actor,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{"product_id": product.ID, "sku": product.SKU}).Info("Product created")
	return &product, nil
}

func (h *CatalogHandler) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	cacheKey := fmt.Sprintf("%s%d", CATALOG_CACHE_PREFIX, id)

	var cached models.Product
	found, err := h.cache.Get(ctx, cacheKey, &cached)
	if err != nil {
		h.log.WithError(err).Debug("Cache error on GET, falling back to DB")
	} else if found {
		return &cached, nil
	}

	var product models.Product
	if err := h.store.Read(ctx).First(&product, id).Error; err != nil {
		return nil, notFound(err, "product", id)
	}

	if err := h.cache.Set(ctx, cacheKey, &product, cache.TTLShort); err != nil {
		h.log.WithError(err).WithField("key", cacheKey).Debug("Failed to set cache")
	}
	return &product, nil
}

func (h *CatalogHandler) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	cacheKey := CATALOG_SKU_PREFIX + sku

	var cached models.Product
	if found, err := h.cache.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	var product models.Product
	if err := h.store.Read(ctx).Where("sku = ?", sku).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product with sku %q", errs.ErrNotFound, sku)
		}
		return nil, database.Classify(err)
	}

	_ = h.cache.Set(ctx, cacheKey, &product, cache.TTLShort)
	return &product, nil
}

func (h *CatalogHandler) ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	q := h.store.Read(ctx).Order("id")
	if activeOnly {
		q = q.Where("active = ?", true)
	}

	var products []models.Product
	if err := q.Find(&products).Error; err != nil {
		return nil, database.Classify(err)
	}
	return products, nil
}

func (h *CatalogHandler) SetProductActive(ctx context.Context, id int64, active bool) error {
	var product *models.Product
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		p, err := findProduct(tx, id)
		if err != nil {
			return err
		}
		product = p
		return tx.Model(&models.Product{}).Where("id = ?", id).Update("active", active).Error
	})
	if err != nil {
		return err
	}

	h.InvalidateProductCaches(ctx, *product)
	return nil
}

// DeleteProduct removes the product with its prices, category links and
// promotions. Sold lines keep their snapshot with the product cleared.
func (h *CatalogHandler) DeleteProduct(ctx context.Context, id int64) error {
	var product *models.Product
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		p, err := findProduct(tx, id)
		if err != nil {
			return err
		}
		product = p

		var promotionIDs []int64
		if err := tx.Model(&models.Promotion{}).Where("product_id = ?", id).Pluck("id", &promotionIDs).Error; err != nil {
			return err
		}
		if len(promotionIDs) > 0 {
			if err := tx.Model(&models.PurchaseItemPromotion{}).Where("promotion_id IN ?", promotionIDs).
				Update("promotion_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.PromotionAudit{}).Where("target_promotion IN ?", promotionIDs).
				Update("target_promotion", nil).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", promotionIDs).Delete(&models.Promotion{}).Error; err != nil {
				return err
			}
			if err := tx.Where("target_promotion IS NULL AND changed_by IS NULL").Delete(&models.PromotionAudit{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.PurchaseItem{}).Where("product_id = ?", id).Update("product_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductPrice{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductCategory{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Product{}, id).Error
	})
	if err != nil {
		return err
	}

	h.InvalidateProductCaches(ctx, *product)
	h.log.WithField("product_id", id).Info("Product deleted")
	return nil
}

// -- Prices --

func (h *CatalogHandler) SetPrice(ctx context.Context, productID int64, price decimal.Decimal, actor *int64) (*models.ProductPrice, error) {
	return h.appendPrice(ctx, productID, price, h.now(), actor)
}

// BackfillPrice appends a price row with an explicit effective date. A row
// dated before the current price does not change CurrentPrice.
func (h *CatalogHandler) BackfillPrice(ctx context.Context, productID int64, price decimal.Decimal, changedOn time.Time, actor *int64) (*models.ProductPrice, error) {
	if changedOn.IsZero() {
		return nil, fmt.Errorf("%w: changed_on is required", errs.ErrValidation)
	}
	return h.appendPrice(ctx, productID, price, changedOn.UTC(), actor)
}

func (h *CatalogHandler) appendPrice(ctx context.Context, productID int64, price decimal.Decimal, changedOn time.Time, actor *int64) (*models.ProductPrice, error) {
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	row := models.ProductPrice{
		ProductID: productID,
		Price:     price,
		ChangedOn: changedOn,
		ChangedBy: actor,
	}
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := findProduct(tx, productID); err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{"product_id": productID, "price": price.String()}).Info("Price appended")
	return &row, nil
}

func (h *CatalogHandler) CurrentPrice(ctx context.Context, productID int64) (*models.ProductPrice, error) {
	return h.CurrentPriceTx(h.store.Read(ctx), productID)
}

// CurrentPriceTx resolves the latest price row inside the caller's session.
func (h *CatalogHandler) CurrentPriceTx(tx *gorm.DB, productID int64) (*models.ProductPrice, error) {
	prices, err := loadPrices(tx, productID)
	if err != nil {
		return nil, err
	}
	latest, ok := prices.Latest()
	if !ok {
		return nil, fmt.Errorf("%w: product %d", errs.ErrNoPriceSet, productID)
	}
	return &latest, nil
}

// PriceAt returns the price that was in effect at t.
func (h *CatalogHandler) PriceAt(ctx context.Context, productID int64, at time.Time) (*models.ProductPrice, error) {
	prices, err := loadPrices(h.store.Read(ctx), productID)
	if err != nil {
		return nil, err
	}
	row, ok := prices.AsOf(at)
	if !ok {
		return nil, fmt.Errorf("%w: product %d at %s", errs.ErrNoPriceSet, productID, at.Format(time.RFC3339))
	}
	return &row, nil
}

func (h *CatalogHandler) PriceHistory(ctx context.Context, productID int64) ([]models.ProductPrice, error) {
	db := h.store.Read(ctx)
	if _, err := findProduct(db, productID); err != nil {
		return nil, err
	}
	prices, err := loadPrices(db, productID)
	if err != nil {
		return nil, err
	}
	return prices.Sorted(), nil
}

// -- Stock --

func (h *CatalogHandler) AdjustStock(ctx context.Context, productID, delta int64) (*models.Product, error) {
	var product *models.Product
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		if err := h.AdjustStockTx(tx, productID, delta); err != nil {
			return err
		}
		p, err := findProduct(tx, productID)
		product = p
		return err
	})
	if err != nil {
		return nil, err
	}

	h.InvalidateProductCaches(ctx, *product)
	h.log.WithFields(logrus.Fields{"product_id": productID, "delta": delta, "stock": product.Stock}).Info("Stock adjusted")
	return product, nil
}

// AdjustStockTx applies delta with a guarded update so stock never goes
// negative, even when the row was read earlier in the transaction.
func (h *CatalogHandler) AdjustStockTx(tx *gorm.DB, productID, delta int64) error {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock + ? >= 0", productID, delta).
		Update("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	p, err := findProduct(tx, productID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: product %d has %d, requested %d", errs.ErrInsufficientStock, productID, p.Stock, -delta)
}

// LockProducts locks the products in ascending id order and returns them by id.
func (h *CatalogHandler) LockProducts(tx *gorm.DB, ids []int64) (map[int64]models.Product, error) {
	var products []models.Product
	if err := database.ForUpdate(tx).Where("id IN ?", ids).Order("id").Find(&products).Error; err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: product %d", errs.ErrNotFound, id)
		}
	}
	return byID, nil
}

// -- Categories --

func (h *CatalogHandler) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", errs.ErrValidation)
	}

	category := models.Category{Name: name}
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Category{}).Where("name = ?", name).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: category %q already exists", errs.ErrConstraintViolation, name)
		}
		return tx.Create(&category).Error
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (h *CatalogHandler) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := h.store.Read(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, database.Classify(err)
	}
	return categories, nil
}

func (h *CatalogHandler) AddProductToCategory(ctx context.Context, productID, categoryID int64) error {
	return h.store.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := findProduct(tx, productID); err != nil {
			return err
		}
		var category models.Category
		if err := tx.First(&category, categoryID).Error; err != nil {
			return notFound(err, "category", categoryID)
		}

		var existing int64
		if err := tx.Model(&models.ProductCategory{}).
			Where("product_id = ? AND category_id = ?", productID, categoryID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: product %d already in category %d", errs.ErrConstraintViolation, productID, categoryID)
		}
		return tx.Create(&models.ProductCategory{ProductID: productID, CategoryID: categoryID}).Error
	})
}

func (h *CatalogHandler) RemoveProductFromCategory(ctx context.Context, productID, categoryID int64) error {
	return h.store.InTx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("product_id = ? AND category_id = ?", productID, categoryID).Delete(&models.ProductCategory{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: product %d not in category %d", errs.ErrNotFound, productID, categoryID)
		}
		return nil
	})
}

func (h *CatalogHandler) ListCategoryProducts(ctx context.Context, categoryID int64) ([]models.Product, error) {
	db := h.store.Read(ctx)

	var category models.Category
	if err := db.First(&category, categoryID).Error; err != nil {
		return nil, notFound(err, "category", categoryID)
	}

	var products []models.Product
	err := db.Joins("JOIN product_categories ON product_categories.product_id = products.id").
		Where("product_categories.category_id = ?", categoryID).
		Order("products.id").
		Find(&products).Error
	if err != nil {
		return nil, database.Classify(err)
	}
	return products, nil
}

func (h *CatalogHandler) DeleteCategory(ctx context.Context, id int64) error {
	return h.store.InTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("category_id = ?", id).Delete(&models.ProductCategory{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Category{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: category %d", errs.ErrNotFound, id)
		}
		return nil
	})
}

// --- Store helpers ---

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", errs.ErrValidation)
	}
	if price.Exponent() < -6 && !price.Equal(price.Round(6)) {
		return fmt.Errorf("%w: price has more than 6 decimal places", errs.ErrValidation)
	}
	return nil
}

func findProduct(tx *gorm.DB, id int64) (*models.Product, error) {
	var product models.Product
	if err := tx.First(&product, id).Error; err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

func loadPrices(tx *gorm.DB, productID int64) (history.History[models.ProductPrice], error) {
	var rows []models.ProductPrice
	if err := tx.Where("product_id = ?", productID).Order("id").Find(&rows).Error; err != nil {
		return history.History[models.ProductPrice]{}, database.Classify(err)
	}
	return history.New(rows), nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", errs.ErrNotFound, what, id)
	}
	return database.Classify(err)
}
