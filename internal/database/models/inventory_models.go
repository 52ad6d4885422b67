package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64     `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name;type:text;not null" json:"name"`
	Description *string   `gorm:"column:description;type:text" json:"description,omitempty"`
	SKU         string    `gorm:"column:sku;type:text;uniqueIndex;not null" json:"sku"`
	Stock       int64     `gorm:"size:32;column:stock;not null;check:stock >= 0" json:"stock"`
	Active      bool      `gorm:"column:active;not null" json:"active"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`

	Prices []ProductPrice `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Product) TableName() string { return "products" }

// ProductPrice is one append-only version of a product's price.
type ProductPrice struct {
	ID        int64           `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	ProductID int64           `gorm:"size:32;column:product_id;not null;index" json:"product_id"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(15,6);not null;check:price >= 0" json:"price"`
	ChangedOn time.Time       `gorm:"column:changed_on;not null" json:"changed_on"`
	ChangedBy *int64          `gorm:"size:32;column:changed_by;index" json:"changed_by"`
}

func (ProductPrice) TableName() string { return "product_prices" }

func (p ProductPrice) VersionID() int64       { return p.ID }
func (p ProductPrice) EffectiveAt() time.Time { return p.ChangedOn }

type Category struct {
	ID   int64  `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"column:name;type:text;uniqueIndex;not null" json:"name"`
}

func (Category) TableName() string { return "categories" }

type ProductCategory struct {
	ProductID  int64 `gorm:"size:32;column:product_id;primaryKey;autoIncrement:false" json:"product_id"`
	CategoryID int64 `gorm:"size:32;column:category_id;primaryKey;autoIncrement:false" json:"category_id"`

	Product  *Product  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"-"`
	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ProductCategory) TableName() string { return "product_categories" }
