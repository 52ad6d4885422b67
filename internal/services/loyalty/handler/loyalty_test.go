package handler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-system/internal/database/dbtest"
	"pos-system/internal/database/models"
	"pos-system/internal/errs"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestHandler(t *testing.T) (*LoyaltyHandler, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewLoyaltyHandler(dbtest.NewStore(t), WithClock(c.now)), c
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateCustomer(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	c, err := h.CreateCustomer(ctx, CreateCustomerInput{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"})
	require.NoError(t, err)
	assert.Zero(t, c.Points)

	_, err = h.CreateCustomer(ctx, CreateCustomerInput{FirstName: "G", LastName: "H", Email: "grace@example.com"})
	assert.ErrorIs(t, err, errs.ErrConstraintViolation)

	for _, bad := range []string{"", "no-at-sign", "a@-bad.com", "a b@example.com"} {
		_, err = h.CreateCustomer(ctx, CreateCustomerInput{FirstName: "G", LastName: "H", Email: bad})
		assert.ErrorIs(t, err, errs.ErrValidation, bad)
	}

	got, err := h.GetCustomerByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestCurrentRewards_AsOf(t *testing.T) {
	h, c := newTestHandler(t)
	ctx := context.Background()
	start := c.t

	_, err := h.CurrentRewards(ctx, start)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = h.SetRewardsSetting(ctx, dec("1"), dec("0.01"))
	require.NoError(t, err)
	c.t = start.Add(24 * time.Hour)
	_, err = h.SetRewardsSetting(ctx, dec("2"), dec("0.02"))
	require.NoError(t, err)

	before, err := h.CurrentRewards(ctx, start.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, dec("1").Equal(before.PointsPerDollar), "a purchase before the change keeps the old rate")

	after, err := h.CurrentRewards(ctx, c.t)
	require.NoError(t, err)
	assert.True(t, dec("2").Equal(after.PointsPerDollar))

	history, err := h.RewardsHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = h.SetRewardsSetting(ctx, dec("-1"), dec("0.01"))
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = h.SetRewardsSetting(ctx, dec("1.00001"), dec("0.01"))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestPointsFor_RoundsDown(t *testing.T) {
	setting := models.RewardsSetting{PointsPerDollar: dec("1.5")}

	assert.Equal(t, int64(40), PointsFor(setting, dec("27.00")))
	assert.Equal(t, int64(1), PointsFor(setting, dec("1.33")))
	assert.Equal(t, int64(0), PointsFor(setting, dec("0.66")))
	assert.Equal(t, int64(0), PointsFor(setting, dec("-5")))
}

func TestPointsForPurchase_WithoutSetting(t *testing.T) {
	h, c := newTestHandler(t)
	n, err := h.PointsForPurchase(context.Background(), dec("100"), c.t)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedeemPoints(t *testing.T) {
	h, c := newTestHandler(t)
	ctx := context.Background()
	_, err := h.SetRewardsSetting(ctx, dec("1"), dec("0.05"))
	require.NoError(t, err)
	customer, err := h.CreateCustomer(ctx, CreateCustomerInput{FirstName: "A", LastName: "B", Email: "a@b.co"})
	require.NoError(t, err)
	require.NoError(t, h.AwardPointsTx(h.store.DB, customer.ID, 100))

	value, err := h.RedeemPoints(ctx, customer.ID, 40, c.t)
	require.NoError(t, err)
	assert.True(t, dec("2").Equal(value))

	_, err = h.RedeemPoints(ctx, customer.ID, 61, c.t)
	assert.ErrorIs(t, err, errs.ErrInsufficientPoints)

	got, err := h.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Points, "failed redemption leaves the balance unchanged")

	_, err = h.RedeemPoints(ctx, customer.ID, -1, c.t)
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = h.RedeemPoints(ctx, 999, 1, c.t)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAwardPointsTx_UnknownCustomer(t *testing.T) {
	h, _ := newTestHandler(t)
	assert.ErrorIs(t, h.AwardPointsTx(h.store.DB, 42, 10), errs.ErrNotFound)
}
