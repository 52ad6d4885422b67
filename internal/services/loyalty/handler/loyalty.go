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

	"pos-system/internal/database"
	"pos-system/internal/database/models"
	"pos-system/internal/errs"
	"pos-system/internal/history"
)

type LoyaltyHandler struct {
	store *database.Store
	log   *logrus.Entry
	now   func() time.Time
}

type Option func(*LoyaltyHandler)

func WithClock(now func() time.Time) Option {
	return func(h *LoyaltyHandler) { h.now = now }
}

func NewLoyaltyHandler(store *database.Store, opts ...Option) *LoyaltyHandler {
	h := &LoyaltyHandler{
		store: store,
		log:   logrus.WithField("service", "loyalty"),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// -- Customers --

type CreateCustomerInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (h *LoyaltyHandler) CreateCustomer(ctx context.Context, in CreateCustomerInput) (*models.Customer, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	if in.FirstName == "" || in.LastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", errs.ErrValidation)
	}
	if !models.ValidEmail(in.Email) {
		return nil, fmt.Errorf("%w: %q is not a valid email", errs.ErrValidation, in.Email)
	}

	customer := models.Customer{FirstName: in.FirstName, LastName: in.LastName, Email: in.Email}
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Customer{}).Where("email = ?", in.Email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: email %q already registered", errs.ErrConstraintViolation, in.Email)
		}
		return tx.Create(&customer).Error
	})
	if err != nil {
		return nil, err
	}

	h.log.WithField("customer_id", customer.ID).Info("Customer created")
	return &customer, nil
}

func (h *LoyaltyHandler) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return findCustomer(h.store.Read(ctx), id)
}

func (h *LoyaltyHandler) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	if err := h.store.Read(ctx).Where("email = ?", strings.TrimSpace(email)).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer %q", errs.ErrNotFound, email)
		}
		return nil, database.Classify(err)
	}
	return &customer, nil
}

// -- Rewards settings --

func (h *LoyaltyHandler) SetRewardsSetting(ctx context.Context, pointsPerDollar, dollarPerPoints decimal.Decimal) (*models.RewardsSetting, error) {
	if err := validateRate("points_per_dollar", pointsPerDollar); err != nil {
		return nil, err
	}
	if err := validateRate("dollar_per_points", dollarPerPoints); err != nil {
		return nil, err
	}

	row := models.RewardsSetting{
		PointsPerDollar: pointsPerDollar,
		DollarPerPoints: dollarPerPoints,
		ChangedOn:       h.now(),
	}
	if err := h.store.InTx(ctx, func(tx *gorm.DB) error { return tx.Create(&row).Error }); err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{
		"points_per_dollar": pointsPerDollar.String(),
		"dollar_per_points": dollarPerPoints.String(),
	}).Info("Rewards setting appended")
	return &row, nil
}

// CurrentRewards returns the setting in effect at asOf. Purchases are priced
// with the setting of their own timestamp, so later rate changes never
// re-price them.
func (h *LoyaltyHandler) CurrentRewards(ctx context.Context, asOf time.Time) (*models.RewardsSetting, error) {
	return h.CurrentRewardsTx(h.store.Read(ctx), asOf)
}

func (h *LoyaltyHandler) CurrentRewardsTx(tx *gorm.DB, asOf time.Time) (*models.RewardsSetting, error) {
	settings, err := loadSettings(tx)
	if err != nil {
		return nil, err
	}
	row, ok := settings.AsOf(asOf)
	if !ok {
		return nil, fmt.Errorf("%w: no rewards setting in effect at %s", errs.ErrNotFound, asOf.Format(time.RFC3339))
	}
	return &row, nil
}

func (h *LoyaltyHandler) RewardsHistory(ctx context.Context) ([]models.RewardsSetting, error) {
	settings, err := loadSettings(h.store.Read(ctx))
	if err != nil {
		return nil, err
	}
	return settings.Sorted(), nil
}

// PointsFor is amount × points_per_dollar rounded down. Non-positive amounts
// earn nothing.
func PointsFor(setting models.RewardsSetting, amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	return amount.Mul(setting.PointsPerDollar).Floor().IntPart()
}

// PointsForPurchase is zero when no rewards setting was in effect at asOf.
func (h *LoyaltyHandler) PointsForPurchase(ctx context.Context, amount decimal.Decimal, asOf time.Time) (int64, error) {
	setting, err := h.CurrentRewards(ctx, asOf)
	if errors.Is(err, errs.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return PointsFor(*setting, amount), nil
}

// -- Points --

// RedeemPoints debits n points and returns their dollar value under the
// setting in effect at asOf. A request above the balance fails with
// ErrInsufficientPoints and leaves the balance unchanged.
func (h *LoyaltyHandler) RedeemPoints(ctx context.Context, customerID, n int64, asOf time.Time) (decimal.Decimal, error) {
	var value decimal.Decimal
	err := h.store.InTx(ctx, func(tx *gorm.DB) error {
		setting, err := h.CurrentRewardsTx(tx, asOf)
		if err != nil {
			return err
		}
		if _, err := h.LockCustomer(tx, customerID); err != nil {
			return err
		}
		value, err = h.RedeemPointsTx(tx, customerID, n, *setting)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	h.log.WithFields(logrus.Fields{"customer_id": customerID, "points": n}).Info("Points redeemed")
	return value, nil
}

// LockCustomer reads the customer row under an update lock.
func (h *LoyaltyHandler) LockCustomer(tx *gorm.DB, id int64) (*models.Customer, error) {
	return findCustomer(database.ForUpdate(tx), id)
}

func (h *LoyaltyHandler) RedeemPointsTx(tx *gorm.DB, customerID, n int64, setting models.RewardsSetting) (decimal.Decimal, error) {
	if n < 0 {
		return decimal.Zero, fmt.Errorf("%w: points to redeem must not be negative", errs.ErrValidation)
	}
	if n == 0 {
		return decimal.Zero, nil
	}

	res := tx.Model(&models.Customer{}).
		Where("id = ? AND points >= ?", customerID, n).
		Update("points", gorm.Expr("points - ?", n))
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		customer, err := findCustomer(tx, customerID)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("%w: customer %d has %d, requested %d",
			errs.ErrInsufficientPoints, customerID, customer.Points, n)
	}

	return setting.DollarPerPoints.Mul(decimal.NewFromInt(n)), nil
}

func (h *LoyaltyHandler) AwardPointsTx(tx *gorm.DB, customerID, n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: awarded points must not be negative", errs.ErrValidation)
	}
	if n == 0 {
		return nil
	}
	res := tx.Model(&models.Customer{}).Where("id = ?", customerID).Update("points", gorm.Expr("points + ?", n))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: customer %d", errs.ErrNotFound, customerID)
	}
	return nil
}

func validateRate(name string, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", errs.ErrValidation, name)
	}
	if !rate.Equal(rate.Round(4)) {
		return fmt.Errorf("%w: %s has more than 4 decimal places", errs.ErrValidation, name)
	}
	return nil
}

func findCustomer(tx *gorm.DB, id int64) (*models.Customer, error) {
	var customer models.Customer
	if err := tx.First(&customer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer %d", errs.ErrNotFound, id)
		}
		return nil, database.Classify(err)
	}
	return &customer, nil
}

func loadSettings(tx *gorm.DB) (history.History[models.RewardsSetting], error) {
	var rows []models.RewardsSetting
	if err := tx.Order("id").Find(&rows).Error; err != nil {
		return history.History[models.RewardsSetting]{}, database.Classify(err)
	}
	return history.New(rows), nil
}
