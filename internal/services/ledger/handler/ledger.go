package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pos-system/internal/database"
	"pos-system/internal/database/models"
	"pos-system/internal/errs"
	"pos-system/internal/events"
	catalog "pos-system/internal/services/catalog/handler"
	loyalty "pos-system/internal/services/loyalty/handler"
	promotions "pos-system/internal/services/promotions/handler"
)

// --- Handler ---

type LedgerHandler struct {
	store      *database.Store
	catalog    *catalog.CatalogHandler
	promotions *promotions.PromotionsHandler
	loyalty    *loyalty.LoyaltyHandler
	events     events.Publisher
	log        *logrus.Entry
	now        func() time.Time
}

type Option func(*LedgerHandler)

func WithPublisher(p events.Publisher) Option {
	return func(h *LedgerHandler) { h.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(h *LedgerHandler) { h.now = now }
}

func NewLedgerHandler(
	store *database.Store,
	catalogHandler *catalog.CatalogHandler,
	promotionsHandler *promotions.PromotionsHandler,
	loyaltyHandler *loyalty.LoyaltyHandler,
	opts ...Option,
) *LedgerHandler {
	h := &LedgerHandler{
		store:      store,
		catalog:    catalogHandler,
		promotions: promotionsHandler,
		loyalty:    loyaltyHandler,
		events:     events.NopPublisher{},
		log:        logrus.WithField("service", "ledger"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// -- Purchases --

type PurchaseItemInput struct {
	ProductID      int64    `json:"product_id"`
	Units          int64    `json:"units"`
	PromotionCodes []string `json:"promotion_codes,omitempty"`
}

type CreatePurchaseInput struct {
	CustomerID     *int64              `json:"customer_id"`
	Items          []PurchaseItemInput `json:"items"`
	PointsToRedeem int64               `json:"points_to_redeem"`
}

func (in CreatePurchaseInput) validate() error {
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: a purchase needs at least one item", errs.ErrValidation)
	}
	for i, item := range in.Items {
		if item.Units <= 0 {
			return fmt.Errorf("%w: item %d: units must be positive", errs.ErrValidation, i)
		}
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: item %d: product_id is required", errs.ErrValidation, i)
		}
	}
	if in.PointsToRedeem < 0 {
		return fmt.Errorf("%w: points to redeem must not be negative", errs.ErrValidation)
	}
	if in.PointsToRedeem > 0 && in.CustomerID == nil {
		return fmt.Errorf("%w: anonymous purchases cannot redeem points", errs.ErrValidation)
	}
	return nil
}

// Receipt is a purchase with its money breakdown. Subtotal is gross minus
// promotion discounts; Total also takes off the redeemed points.
type Receipt struct {
	Purchase          models.Purchase `json:"purchase"`
	Gross             decimal.Decimal `json:"gross"`
	PromotionDiscount decimal.Decimal `json:"promotion_discount"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	PointsDiscount    decimal.Decimal `json:"points_discount"`
	Total             decimal.Decimal `json:"total"`
	PointsEarned      int64           `json:"points_earned"`
}

// CreatePurchase records a sale in one transaction: price snapshots,
// promotion applications, stock decrements, the points debit and credit.
// Nothing is written when any step fails.
func (h *LedgerHandler) CreatePurchase(ctx context.Context, in CreatePurchaseInput) (*Receipt, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var (
		receipt *Receipt
		sold    []models.Product
	)
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		r, products, err := h.createPurchaseTx(tx, in, h.now())
		receipt, sold = r, products
		return err
	})
	if err != nil {
		h.log.WithError(err).WithField("kind", errs.KindOf(err)).Debug("Purchase rejected")
		return nil, err
	}
	h.catalog.InvalidateProductCaches(ctx, sold...)

	h.log.WithFields(logrus.Fields{
		"purchase_id":   receipt.Purchase.ID,
		"total":         receipt.Total.String(),
		"points_earned": receipt.PointsEarned,
	}).Info("Purchase recorded")

	events.PublishLogged(ctx, h.events, h.log, events.NewEvent(events.TypePurchaseCreated, PurchaseEvent{
		PurchaseID:     receipt.Purchase.ID,
		CustomerID:     receipt.Purchase.CustomerID,
		Total:          receipt.Total.String(),
		PointsRedeemed: receipt.Purchase.PointsRedeemed,
		PointsEarned:   receipt.PointsEarned,
		Receipt:        receipt,
	}))
	return receipt, nil
}

// createPurchaseTx also returns the products whose stock it decremented.
func (h *LedgerHandler) createPurchaseTx(tx *gorm.DB, in CreatePurchaseInput, now time.Time) (*Receipt, []models.Product, error) {
	// Products first, then promotions, then the customer: every purchase
	// takes its locks in the same order.
	productIDs := lo.Uniq(lo.Map(in.Items, func(i PurchaseItemInput, _ int) int64 { return i.ProductID }))
	sort.Slice(productIDs, func(a, b int) bool { return productIDs[a] < productIDs[b] })

	products, err := h.catalog.LockProducts(tx, productIDs)
	if err != nil {
		return nil, nil, err
	}

	lines := make([]promotions.Line, len(in.Items))
	for i, item := range in.Items {
		if !products[item.ProductID].Active {
			return nil, nil, fmt.Errorf("%w: product %d is not for sale", errs.ErrValidation, item.ProductID)
		}
		price, err := h.catalog.CurrentPriceTx(tx, item.ProductID)
		if err != nil {
			return nil, nil, err
		}
		lines[i] = promotions.Line{
			ProductID: item.ProductID,
			Units:     item.Units,
			Price:     price.Price,
			Codes:     item.PromotionCodes,
		}
	}

	applications, err := h.promotions.AllocateTx(tx, lines, now)
	if err != nil {
		return nil, nil, err
	}

	receipt := &Receipt{
		Gross:             decimal.Zero,
		PromotionDiscount: decimal.Zero,
		PointsDiscount:    decimal.Zero,
	}
	lineNet := make([]decimal.Decimal, len(lines))
	for i, line := range lines {
		gross := line.Price.Mul(decimal.NewFromInt(line.Units))
		discount := lo.Reduce(applications[i], func(acc decimal.Decimal, a promotions.Application, _ int) decimal.Decimal {
			return acc.Add(a.Amount())
		}, decimal.Zero)
		receipt.Gross = receipt.Gross.Add(gross)
		receipt.PromotionDiscount = receipt.PromotionDiscount.Add(discount)
		lineNet[i] = gross.Sub(discount)
	}
	receipt.Subtotal = receipt.Gross.Sub(receipt.PromotionDiscount)

	unitsByProduct := lo.MapValues(
		lo.GroupBy(in.Items, func(i PurchaseItemInput) int64 { return i.ProductID }),
		func(items []PurchaseItemInput, _ int64) int64 {
			return lo.SumBy(items, func(i PurchaseItemInput) int64 { return i.Units })
		},
	)
	for _, id := range productIDs {
		if err := h.catalog.AdjustStockTx(tx, id, -unitsByProduct[id]); err != nil {
			return nil, nil, err
		}
	}

	var setting *models.RewardsSetting
	if in.CustomerID != nil {
		if _, err := h.loyalty.LockCustomer(tx, *in.CustomerID); err != nil {
			return nil, nil, err
		}
		setting, err = h.loyalty.CurrentRewardsTx(tx, now)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, nil, err
		}
	}

	if in.PointsToRedeem > 0 {
		if setting == nil {
			return nil, nil, fmt.Errorf("%w: no rewards setting in effect, points cannot be redeemed", errs.ErrValidation)
		}
		value, err := h.loyalty.RedeemPointsTx(tx, *in.CustomerID, in.PointsToRedeem, *setting)
		if err != nil {
			return nil, nil, err
		}
		if value.GreaterThan(receipt.Subtotal) {
			return nil, nil, fmt.Errorf("%w: %s of points exceeds the purchase subtotal %s",
				errs.ErrValidation, value.String(), receipt.Subtotal.String())
		}
		receipt.PointsDiscount = value
	}
	receipt.Total = receipt.Subtotal.Sub(receipt.PointsDiscount)

	purchase := models.Purchase{
		CustomerID:     in.CustomerID,
		PurchaseDate:   now,
		PointsRedeemed: in.PointsToRedeem,
	}
	if err := tx.Create(&purchase).Error; err != nil {
		return nil, nil, err
	}

	linePoints := splitPoints(in.PointsToRedeem, lineNet, receipt.Subtotal)
	for i, line := range lines {
		productID := line.ProductID
		item := models.PurchaseItem{
			PurchaseID:     purchase.ID,
			ProductID:      &productID,
			Units:          line.Units,
			PricePerUnit:   line.Price,
			PointsRedeemed: linePoints[i],
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, nil, err
		}

		for _, app := range applications[i] {
			promotionID := app.Promotion.ID
			row := models.PurchaseItemPromotion{
				PurchaseItemID:  item.ID,
				PromotionID:     &promotionID,
				Units:           app.Units,
				DiscountPerUnit: app.DiscountPerUnit,
			}
			if err := tx.Create(&row).Error; err != nil {
				return nil, nil, err
			}
			item.Promotions = append(item.Promotions, row)
		}
		purchase.Items = append(purchase.Items, item)
	}

	// Points are earned on the subtotal, before redeemed points come off.
	if in.CustomerID != nil && setting != nil {
		receipt.PointsEarned = loyalty.PointsFor(*setting, receipt.Subtotal)
		if err := h.loyalty.AwardPointsTx(tx, *in.CustomerID, receipt.PointsEarned); err != nil {
			return nil, nil, err
		}
	}

	receipt.Purchase = purchase
	sold := lo.Map(productIDs, func(id int64, _ int) models.Product { return products[id] })
	return receipt, sold, nil
}

// splitPoints spreads redeemed points over the lines in proportion to their
// net amount. The rounding remainder goes to the last line.
func splitPoints(points int64, lineNet []decimal.Decimal, subtotal decimal.Decimal) []int64 {
	out := make([]int64, len(lineNet))
	if points == 0 || len(lineNet) == 0 {
		return out
	}

	var assigned int64
	if subtotal.IsPositive() {
		total := decimal.NewFromInt(points)
		for i := 0; i < len(lineNet)-1; i++ {
			out[i] = total.Mul(lineNet[i]).Div(subtotal).Floor().IntPart()
			assigned += out[i]
		}
	}
	out[len(out)-1] = points - assigned
	return out
}

func (h *LedgerHandler) GetPurchase(ctx context.Context, id int64) (*Receipt, error) {
	db := h.store.Read(ctx)

	var purchase models.Purchase
	err := db.Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("id") }).
		Preload("Items.Promotions", func(q *gorm.DB) *gorm.DB { return q.Order("id") }).
		First(&purchase, id).Error
	if err != nil {
		return nil, notFound(err, "purchase", id)
	}

	receipt := &Receipt{
		Purchase:          purchase,
		Gross:             decimal.Zero,
		PromotionDiscount: decimal.Zero,
		PointsDiscount:    decimal.Zero,
	}
	for _, item := range purchase.Items {
		receipt.Gross = receipt.Gross.Add(item.Gross())
		receipt.PromotionDiscount = receipt.PromotionDiscount.Add(item.PromotionDiscount())
	}
	receipt.Subtotal = receipt.Gross.Sub(receipt.PromotionDiscount)

	// Rewards are re-derived from the setting in effect at purchase time.
	setting, err := h.loyalty.CurrentRewardsTx(db, purchase.PurchaseDate)
	switch {
	case err == nil:
		receipt.PointsDiscount = setting.DollarPerPoints.Mul(decimal.NewFromInt(purchase.PointsRedeemed))
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}
	receipt.Total = receipt.Subtotal.Sub(receipt.PointsDiscount)
	if setting != nil && purchase.CustomerID != nil {
		receipt.PointsEarned = loyalty.PointsFor(*setting, receipt.Subtotal)
	}

	return receipt, nil
}

func (h *LedgerHandler) ListCustomerPurchases(ctx context.Context, customerID int64) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := h.store.Read(ctx).
		Preload("Items.Promotions").
		Where("customer_id = ?", customerID).
		Order("id").
		Find(&purchases).Error
	if err != nil {
		return nil, database.Classify(err)
	}
	return purchases, nil
}

// DeletePurchase removes the purchase with its lines, promotion applications
// and refunds.
func (h *LedgerHandler) DeletePurchase(ctx context.Context, id int64) error {
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		var purchase models.Purchase
		if err := database.ForUpdate(tx).First(&purchase, id).Error; err != nil {
			return notFound(err, "purchase", id)
		}

		var refundIDs, itemIDs []int64
		if err := tx.Model(&models.Refund{}).Where("purchase_id = ?", id).Pluck("id", &refundIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.PurchaseItem{}).Where("purchase_id = ?", id).Pluck("id", &itemIDs).Error; err != nil {
			return err
		}

		if len(refundIDs) > 0 {
			if err := tx.Where("refund_id IN ?", refundIDs).Delete(&models.RefundItem{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", refundIDs).Delete(&models.Refund{}).Error; err != nil {
				return err
			}
		}
		if len(itemIDs) > 0 {
			if err := tx.Where("purchase_item_id IN ?", itemIDs).Delete(&models.PurchaseItemPromotion{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", itemIDs).Delete(&models.PurchaseItem{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Purchase{}, id).Error
	})
	if err != nil {
		return err
	}

	h.log.WithField("purchase_id", id).Info("Purchase deleted")
	return nil
}

// -- Refunds --

type RefundItemInput struct {
	PurchaseItemID int64 `json:"purchase_item_id"`
	Units          int64 `json:"units"`
}

type RefundReceipt struct {
	Refund models.Refund   `json:"refund"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateRefund returns units of a purchase. Requested lines for the same
// purchase item are summed; the refunded total of an item never exceeds its
// purchased units. Points and promotion caps are not reversed and stock is
// not restored.
func (h *LedgerHandler) CreateRefund(ctx context.Context, purchaseID int64, items []RefundItemInput) (*RefundReceipt, error) {
	requested, err := mergeRefundItems(items)
	if err != nil {
		return nil, err
	}

	var receipt *RefundReceipt
	err = h.store.InTx(ctx, func(tx *gorm.DB) error {
		r, err := h.createRefundTx(tx, purchaseID, requested)
		receipt = r
		return err
	})
	if err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{
		"refund_id":   receipt.Refund.ID,
		"purchase_id": purchaseID,
		"amount":      receipt.Amount.String(),
	}).Info("Refund recorded")

	events.PublishLogged(ctx, h.events, h.log, events.NewEvent(events.TypeRefundCreated, RefundEvent{
		RefundID:   receipt.Refund.ID,
		PurchaseID: purchaseID,
		Amount:     receipt.Amount.String(),
		Refund:     receipt,
	}))
	return receipt, nil
}

func mergeRefundItems(items []RefundItemInput) ([]RefundItemInput, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: a refund needs at least one item", errs.ErrValidation)
	}

	var merged []RefundItemInput
	index := map[int64]int{}
	for i, item := range items {
		if item.Units <= 0 {
			return nil, fmt.Errorf("%w: item %d: units must be positive", errs.ErrValidation, i)
		}
		if at, ok := index[item.PurchaseItemID]; ok {
			merged[at].Units += item.Units
			continue
		}
		index[item.PurchaseItemID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func (h *LedgerHandler) createRefundTx(tx *gorm.DB, purchaseID int64, requested []RefundItemInput) (*RefundReceipt, error) {
	var purchase models.Purchase
	if err := database.ForUpdate(tx).First(&purchase, purchaseID).Error; err != nil {
		return nil, notFound(err, "purchase", purchaseID)
	}

	var items []models.PurchaseItem
	if err := tx.Preload("Promotions").Where("purchase_id = ?", purchaseID).Find(&items).Error; err != nil {
		return nil, err
	}
	byID := lo.KeyBy(items, func(i models.PurchaseItem) int64 { return i.ID })

	amount := decimal.Zero
	for _, req := range requested {
		item, ok := byID[req.PurchaseItemID]
		if !ok {
			return nil, fmt.Errorf("%w: purchase item %d does not belong to purchase %d",
				errs.ErrValidation, req.PurchaseItemID, purchaseID)
		}

		var alreadyRefunded int64
		if err := tx.Model(&models.RefundItem{}).
			Where("purchase_item_id = ?", item.ID).
			Select("COALESCE(SUM(units), 0)").
			Scan(&alreadyRefunded).Error; err != nil {
			return nil, err
		}
		if req.Units+alreadyRefunded > item.Units {
			return nil, fmt.Errorf("%w: purchase item %d bought %d, refunded %d, requested %d",
				errs.ErrOverRefund, item.ID, item.Units, alreadyRefunded, req.Units)
		}

		amount = amount.Add(refundAmount(item, req.Units))
	}

	refund := models.Refund{PurchaseID: purchaseID, RefundDate: h.now()}
	if err := tx.Create(&refund).Error; err != nil {
		return nil, err
	}
	for _, req := range requested {
		row := models.RefundItem{RefundID: refund.ID, PurchaseItemID: req.PurchaseItemID, Units: req.Units}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
		refund.Items = append(refund.Items, row)
	}

	return &RefundReceipt{Refund: refund, Amount: amount}, nil
}

// refundAmount prices returned units at the line's net unit price: the
// price snapshot less the line's promotion discount spread over its units.
func refundAmount(item models.PurchaseItem, units int64) decimal.Decimal {
	net := item.Gross().Sub(item.PromotionDiscount())
	return net.Mul(decimal.NewFromInt(units)).Div(decimal.NewFromInt(item.Units)).Round(6)
}

func (h *LedgerHandler) ListRefunds(ctx context.Context, purchaseID int64) ([]models.Refund, error) {
	db := h.store.Read(ctx)

	var purchase models.Purchase
	if err := db.First(&purchase, purchaseID).Error; err != nil {
		return nil, notFound(err, "purchase", purchaseID)
	}

	var refunds []models.Refund
	if err := db.Preload("Items").Where("purchase_id = ?", purchaseID).Order("id").Find(&refunds).Error; err != nil {
		return nil, database.Classify(err)
	}
	return refunds, nil
}

// RefundedUnits is the number of units already returned per purchase item.
func (h *LedgerHandler) RefundedUnits(ctx context.Context, purchaseID int64) (map[int64]int64, error) {
	refunds, err := h.ListRefunds(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	out := map[int64]int64{}
	for _, r := range refunds {
		for _, item := range r.Items {
			out[item.PurchaseItemID] += item.Units
		}
	}
	return out, nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", errs.ErrNotFound, what, id)
	}
	return database.Classify(err)
}
