package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Purchase struct {
	ID             int64     `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	CustomerID     *int64    `gorm:"size:32;column:customer_id;index" json:"customer_id"`
	PurchaseDate   time.Time `gorm:"column:purchase_date;not null" json:"purchase_date"`
	PointsRedeemed int64     `gorm:"size:32;column:points_redeemed;not null;check:points_redeemed >= 0" json:"points_redeemed"`

	Items []PurchaseItem `gorm:"foreignKey:PurchaseID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (Purchase) TableName() string { return "purchases" }

type PurchaseItem struct {
	ID             int64           `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	PurchaseID     int64           `gorm:"size:32;column:purchase_id;not null;index" json:"purchase_id"`
	ProductID      *int64          `gorm:"size:32;column:product_id;index" json:"product_id"`
	Units          int64           `gorm:"size:32;column:units;not null;check:units > 0" json:"units"`
	PricePerUnit   decimal.Decimal `gorm:"column:price_per_unit;type:numeric(15,6);not null;check:price_per_unit >= 0" json:"price_per_unit"`
	PointsRedeemed int64           `gorm:"size:32;column:points_redeemed;not null;check:points_redeemed >= 0" json:"points_redeemed"`

	Promotions []PurchaseItemPromotion `gorm:"foreignKey:PurchaseItemID;constraint:OnDelete:CASCADE" json:"promotions,omitempty"`
}

func (PurchaseItem) TableName() string { return "purchase_items" }

// Gross is units times the price snapshot.
func (i PurchaseItem) Gross() decimal.Decimal {
	return i.PricePerUnit.Mul(decimal.NewFromInt(i.Units))
}

// PromotionDiscount sums the loaded promotion applications of the line.
func (i PurchaseItem) PromotionDiscount() decimal.Decimal {
	total := decimal.Zero
	for _, p := range i.Promotions {
		total = total.Add(p.Amount())
	}
	return total
}

type PurchaseItemPromotion struct {
	ID              int64           `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	PurchaseItemID  int64           `gorm:"size:32;column:purchase_item_id;not null;index" json:"purchase_item_id"`
	PromotionID     *int64          `gorm:"size:32;column:promotion_id;index" json:"promotion_id"`
	Units           int64           `gorm:"size:32;column:units;not null;check:units > 0" json:"units"`
	DiscountPerUnit decimal.Decimal `gorm:"column:discount_per_unit;type:numeric(15,6);not null;check:discount_per_unit > 0" json:"discount_per_unit"`
}

func (PurchaseItemPromotion) TableName() string { return "purchase_item_promotions" }

func (p PurchaseItemPromotion) Amount() decimal.Decimal {
	return p.DiscountPerUnit.Mul(decimal.NewFromInt(p.Units))
}

type Refund struct {
	ID         int64     `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	PurchaseID int64     `gorm:"size:32;column:purchase_id;not null;index" json:"purchase_id"`
	RefundDate time.Time `gorm:"column:refund_date;not null" json:"refund_date"`

	Purchase *Purchase   `gorm:"foreignKey:PurchaseID;constraint:OnDelete:CASCADE" json:"-"`
	Items    []RefundItem `gorm:"foreignKey:RefundID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (Refund) TableName() string { return "refunds" }

type RefundItem struct {
	ID             int64 `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	RefundID       int64 `gorm:"size:32;column:refund_id;not null;index" json:"refund_id"`
	PurchaseItemID int64 `gorm:"size:32;column:purchase_item_id;not null;index" json:"purchase_item_id"`
	Units          int64 `gorm:"size:32;column:units;not null;check:units > 0" json:"units"`

	PurchaseItem *PurchaseItem `gorm:"foreignKey:PurchaseItemID;constraint:OnDelete:CASCADE" json:"-"`
}

func (RefundItem) TableName() string { return "refund_items" }

// All returns every model in dependency order for migration.
func All() []interface{} {
	return []interface{}{
		&Employee{},
		&Role{},
		&EmployeeRole{},
		&EmployeeRoleAudit{},
		&RolePermission{},
		&RolePermissionAudit{},
		&Product{},
		&ProductPrice{},
		&Category{},
		&ProductCategory{},
		&Promotion{},
		&PromotionAudit{},
		&RewardsSetting{},
		&Customer{},
		&Purchase{},
		&PurchaseItem{},
		&PurchaseItemPromotion{},
		&Refund{},
		&RefundItem{},
	}
}
