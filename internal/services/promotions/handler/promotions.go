package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pos-system/internal/database"
	"pos-system/internal/database/models"
	"pos-system/internal/errs"
)

// CapPolicy decides what happens when a promotion's max_out can cover only
// part of the units a purchase line asks it to discount.
type CapPolicy string

const (
	// CapPolicyPartial discounts up to the remaining cap and sells the rest
	// at full price.
	CapPolicyPartial CapPolicy = "partial"
	// CapPolicyReject fails the purchase with ErrPromotionCapExceeded.
	CapPolicyReject CapPolicy = "reject"
)

func ParseCapPolicy(s string) (CapPolicy, error) {
	switch p := CapPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CapPolicyPartial, CapPolicyReject:
		return p, nil
	case "":
		return CapPolicyPartial, nil
	}
	return "", fmt.Errorf("unknown promotion cap policy %q", s)
}

var hundred = decimal.NewFromInt(100)

// --- Handler ---

type PromotionsHandler struct {
	store  *database.Store
	policy CapPolicy
	log    *logrus.Entry
	now    func() time.Time
}

type Option func(*PromotionsHandler)

func WithCapPolicy(p CapPolicy) Option {
	return func(h *PromotionsHandler) { h.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(h *PromotionsHandler) { h.now = now }
}

func NewPromotionsHandler(store *database.Store, opts ...Option) *PromotionsHandler {
	h := &PromotionsHandler{
		store:  store,
		policy: CapPolicyPartial,
		log:    logrus.WithField("service", "promotions"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *PromotionsHandler) CapPolicy() CapPolicy {
	return h.policy
}

// -- Promotions --

type PromotionInput struct {
	Name        string          `json:"name"`
	RequestCode *string         `json:"request_code"`
	ProductID   int64           `json:"product_id"`
	ReqIn       int64           `json:"req_in"`
	Discount    decimal.Decimal `json:"discount"`
	MaxOut      *int64          `json:"max_out"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
}

func (in *PromotionInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: promotion name is required", errs.ErrValidation)
	}
	if in.RequestCode != nil {
		code := strings.TrimSpace(*in.RequestCode)
		if code == "" {
			in.RequestCode = nil
		} else {
			in.RequestCode = &code
		}
	}
	if in.ReqIn < 0 {
		return fmt.Errorf("%w: req_in must not be negative", errs.ErrValidation)
	}
	if !in.Discount.IsPositive() || in.Discount.GreaterThan(hundred) {
		return fmt.Errorf("%w: discount must be in (0, 100]", errs.ErrValidation)
	}
	if !in.Discount.Equal(in.Discount.Round(2)) {
		return fmt.Errorf("%w: discount has more than 2 decimal places", errs.ErrValidation)
	}
	if in.MaxOut != nil && *in.MaxOut <= 0 {
		return fmt.Errorf("%w: max_out must be positive when set", errs.ErrValidation)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() || !in.StartDate.Before(in.EndDate) {
		return fmt.Errorf("%w: start_date must be before end_date", errs.ErrValidation)
	}
	return nil
}

func (h *PromotionsHandler) CreatePromotion(ctx context.Context, in PromotionInput, actor *int64) (*models.Promotion, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	promotion := models.Promotion{
		Name:        in.Name,
		RequestCode: in.RequestCode,
		ProductID:   in.ProductID,
		ReqIn:       in.ReqIn,
		Discount:    in.Discount,
		MaxOut:      in.MaxOut,
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
		Active:      true,
	}

	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, in.ProductID).Error; err != nil {
			return notFound(err, "product", in.ProductID)
		}

		var taken int64
		q := tx.Model(&models.Promotion{}).Where("name = ?", in.Name)
		if in.RequestCode != nil {
			q = q.Or("request_code = ?", *in.RequestCode)
		}
		if err := q.Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: promotion name or request code already in use", errs.ErrConstraintViolation)
		}

		if err := tx.Create(&promotion).Error; err != nil {
			return err
		}
		return tx.Create(&models.PromotionAudit{
			TargetPromotion: &promotion.ID,
			Action:          models.EditActionAdd,
			ChangedOn:       h.now(),
			ChangedBy:       actor,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{"promotion_id": promotion.ID, "product_id": promotion.ProductID}).Info("Promotion created")
	return &promotion, nil
}

// UpdatePromotion always fails: promotions are immutable once created.
func (h *PromotionsHandler) UpdatePromotion(ctx context.Context, id int64, _ PromotionInput) error {
	if _, err := h.GetPromotion(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: promotion %d cannot be edited, deactivate it and create a new one", errs.ErrImmutablePromotion, id)
}

// DeactivatePromotion is the one change a promotion accepts. Deactivating an
// inactive promotion is a no-op.
func (h *PromotionsHandler) DeactivatePromotion(ctx context.Context, id int64, actor *int64) error {
	changed := false
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		var promotion models.Promotion
		if err := database.ForUpdate(tx).First(&promotion, id).Error; err != nil {
			return notFound(err, "promotion", id)
		}
		if !promotion.Active {
			return nil
		}

		if err := tx.Model(&models.Promotion{}).Where("id = ?", id).Update("active", false).Error; err != nil {
			return err
		}
		changed = true
		return tx.Create(&models.PromotionAudit{
			TargetPromotion: &id,
			Action:          models.EditActionRemove,
			ChangedOn:       h.now(),
			ChangedBy:       actor,
		}).Error
	})
	if err != nil {
		return err
	}

	if changed {
		h.log.WithField("promotion_id", id).Info("Promotion deactivated")
	}
	return nil
}

// ActivatePromotion only accepts promotions that are still active.
// Deactivation is one way.
func (h *PromotionsHandler) ActivatePromotion(ctx context.Context, id int64) error {
	promotion, err := h.GetPromotion(ctx, id)
	if err != nil {
		return err
	}
	if !promotion.Active {
		return fmt.Errorf("%w: promotion %d was deactivated", errs.ErrImmutablePromotion, id)
	}
	return nil
}

func (h *PromotionsHandler) GetPromotion(ctx context.Context, id int64) (*models.Promotion, error) {
	var promotion models.Promotion
	if err := h.store.Read(ctx).First(&promotion, id).Error; err != nil {
		return nil, notFound(err, "promotion", id)
	}
	return &promotion, nil
}

// ListPromotions lists every promotion, or those of one product when
// productID is non-zero.
func (h *PromotionsHandler) ListPromotions(ctx context.Context, productID int64) ([]models.Promotion, error) {
	q := h.store.Read(ctx).Order("id")
	if productID != 0 {
		q = q.Where("product_id = ?", productID)
	}

	var promotions []models.Promotion
	if err := q.Find(&promotions).Error; err != nil {
		return nil, database.Classify(err)
	}
	return promotions, nil
}

func (h *PromotionsHandler) ListAudit(ctx context.Context, id int64) ([]models.PromotionAudit, error) {
	var rows []models.PromotionAudit
	if err := h.store.Read(ctx).Where("target_promotion = ?", id).Order("id").Find(&rows).Error; err != nil {
		return nil, database.Classify(err)
	}
	return rows, nil
}

// -- Redemption --

// ApplicablePromotions returns, lowest id first, the active promotions of the
// product whose window contains asOf and whose req_in is met by quantity.
// Promotions with a request code apply only when the code is presented.
func (h *PromotionsHandler) ApplicablePromotions(ctx context.Context, productID, quantity int64, asOf time.Time, codes []string) ([]models.Promotion, error) {
	return h.ApplicablePromotionsTx(h.store.Read(ctx), productID, quantity, asOf, codes)
}

func (h *PromotionsHandler) ApplicablePromotionsTx(tx *gorm.DB, productID, quantity int64, asOf time.Time, codes []string) ([]models.Promotion, error) {
	var candidates []models.Promotion
	if err := tx.Where("product_id = ? AND active = ?", productID, true).Order("id").Find(&candidates).Error; err != nil {
		return nil, database.Classify(err)
	}

	return lo.Filter(candidates, func(p models.Promotion, _ int) bool {
		if !p.ValidAt(asOf) || quantity < p.ReqIn {
			return false
		}
		return p.RequestCode == nil || lo.Contains(codes, *p.RequestCode)
	}), nil
}

// RedeemedUnits is the number of units discounted by the promotion across
// all purchases.
func (h *PromotionsHandler) RedeemedUnits(ctx context.Context, id int64) (int64, error) {
	return h.RedeemedUnitsTx(h.store.Read(ctx), id)
}

func (h *PromotionsHandler) RedeemedUnitsTx(tx *gorm.DB, id int64) (int64, error) {
	var total int64
	err := tx.Model(&models.PurchaseItemPromotion{}).
		Where("promotion_id = ?", id).
		Select("COALESCE(SUM(units), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, database.Classify(err)
	}
	return total, nil
}

// Line is one purchase line offered to promotion allocation.
type Line struct {
	ProductID int64
	Units     int64
	Price     decimal.Decimal
	Codes     []string
}

// Application is one promotion discounting some units of a line.
type Application struct {
	Promotion       models.Promotion
	Units           int64
	DiscountPerUnit decimal.Decimal
}

func (a Application) Amount() decimal.Decimal {
	return a.DiscountPerUnit.Mul(decimal.NewFromInt(a.Units))
}

// AllocateTx assigns promotions to lines, lowest promotion id first, until the
// line's units or the promotion's cap run out. Capped promotions are locked
// in ascending id order before their redeemed units are read, so concurrent
// purchases serialize on the cap. The result is indexed like lines.
func (h *PromotionsHandler) AllocateTx(tx *gorm.DB, lines []Line, asOf time.Time) ([][]Application, error) {
	candidates := make([][]models.Promotion, len(lines))
	for i, line := range lines {
		promotions, err := h.ApplicablePromotionsTx(tx, line.ProductID, line.Units, asOf, line.Codes)
		if err != nil {
			return nil, err
		}
		candidates[i] = promotions
	}

	ids := lo.Uniq(lo.FlatMap(candidates, func(ps []models.Promotion, _ int) []int64 {
		return lo.Map(ps, func(p models.Promotion, _ int) int64 { return p.ID })
	}))
	if len(ids) == 0 {
		return make([][]Application, len(lines)), nil
	}

	// Re-read under lock: a promotion deactivated by a concurrent
	// transaction no longer applies.
	var locked []models.Promotion
	if err := database.ForUpdate(tx).Where("id IN ?", ids).Order("id").Find(&locked).Error; err != nil {
		return nil, database.Classify(err)
	}
	current := lo.KeyBy(locked, func(p models.Promotion) int64 { return p.ID })

	remaining := make(map[int64]int64)
	for _, p := range locked {
		if p.MaxOut == nil {
			continue
		}
		redeemed, err := h.RedeemedUnitsTx(tx, p.ID)
		if err != nil {
			return nil, err
		}
		remaining[p.ID] = *p.MaxOut - redeemed
	}

	result := make([][]Application, len(lines))
	for i, line := range lines {
		left := line.Units
		for _, candidate := range candidates[i] {
			if left == 0 {
				break
			}
			p, ok := current[candidate.ID]
			if !ok || !p.Active {
				continue
			}

			n := left
			if capLeft, capped := remaining[p.ID]; capped {
				if capLeft <= 0 {
					continue
				}
				if capLeft < n {
					if h.policy == CapPolicyReject {
						return nil, fmt.Errorf("%w: promotion %d has %d of %d units left, line needs %d",
							errs.ErrPromotionCapExceeded, p.ID, capLeft, *p.MaxOut, n)
					}
					n = capLeft
				}
			}

			perUnit := p.DiscountPerUnit(line.Price)
			if !perUnit.IsPositive() {
				continue
			}

			result[i] = append(result[i], Application{Promotion: p, Units: n, DiscountPerUnit: perUnit})
			left -= n
			if _, capped := remaining[p.ID]; capped {
				remaining[p.ID] -= n
			}
		}

		if err := checkOverlap(line, result[i]); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// checkOverlap rejects allocations that discount more units than the line has.
func checkOverlap(line Line, apps []Application) error {
	discounted := lo.SumBy(apps, func(a Application) int64 { return a.Units })
	if discounted > line.Units {
		return fmt.Errorf("%w: %d discounted units on a line of %d", errs.ErrOverlappingDiscount, discounted, line.Units)
	}
	return nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", errs.ErrNotFound, what, id)
	}
	return database.Classify(err)
}
