package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Promotion is a percentage discount on one product. Rows are never updated
// except for the one-way active flag.
type Promotion struct {
	ID          int64           `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"column:name;type:text;uniqueIndex;not null" json:"name"`
	RequestCode *string         `gorm:"column:request_code;type:text;uniqueIndex" json:"request_code,omitempty"`
	ProductID   int64           `gorm:"size:32;column:product_id;not null;index" json:"product_id"`
	ReqIn       int64           `gorm:"size:32;column:req_in;not null;check:req_in >= 0" json:"req_in"`
	Discount    decimal.Decimal `gorm:"column:discount;type:numeric(5,2);not null;check:discount > 0 AND discount <= 100" json:"discount"`
	MaxOut      *int64          `gorm:"size:32;column:max_out;check:max_out IS NULL OR max_out > 0" json:"max_out,omitempty"`
	StartDate   time.Time       `gorm:"column:start_date;not null" json:"start_date"`
	EndDate     time.Time       `gorm:"column:end_date;not null" json:"end_date"`
	Active      bool            `gorm:"column:active;not null" json:"active"`

	Product *Product `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Promotion) TableName() string { return "promotions" }

// ValidAt reports whether t falls in [StartDate, EndDate).
func (p Promotion) ValidAt(t time.Time) bool {
	return !t.Before(p.StartDate) && t.Before(p.EndDate)
}

// DiscountPerUnit is the amount taken off one unit sold at price.
func (p Promotion) DiscountPerUnit(price decimal.Decimal) decimal.Decimal {
	return price.Mul(p.Discount).Div(decimal.NewFromInt(100)).Round(6)
}

type PromotionAudit struct {
	ID              int64      `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	TargetPromotion *int64     `gorm:"size:32;column:target_promotion;index" json:"target_promotion"`
	Action          EditAction `gorm:"column:action;type:edit_action;not null" json:"action"`
	ChangedOn       time.Time  `gorm:"column:changed_on;not null" json:"changed_on"`
	ChangedBy       *int64     `gorm:"size:32;column:changed_by;index" json:"changed_by"`
}

func (PromotionAudit) TableName() string { return "promotions_audit" }

func (a PromotionAudit) Orphaned() bool {
	return a.TargetPromotion == nil && a.ChangedBy == nil
}
