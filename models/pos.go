package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Canonical POS records. Every row is tenant-scoped by restaurant_id and keyed
// by the POS-assigned external id, so re-importing the same id is an update,
// never a duplicate.

type PosCategory struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	RestaurantId string    `gorm:"primaryKey;size:64" json:"restaurant_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Description  string    `gorm:"size:500" json:"description"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PosProduct struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	RestaurantId string          `gorm:"primaryKey;size:64" json:"restaurant_id"`
	CategoryId   string          `gorm:"index;size:64;not null" json:"category_id"`
	Name         string          `gorm:"size:255;not null" json:"name"`
	Description  string          `gorm:"size:500" json:"description"`
	Sku          string          `gorm:"size:100" json:"sku"`
	Price        decimal.Decimal `gorm:"type:decimal(14,4)" json:"price"`
	TaxRate      decimal.Decimal `gorm:"type:decimal(7,4)" json:"tax_rate"`
	OnSale       bool            `gorm:"default:true" json:"on_sale"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PosCustomer struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	RestaurantId string    `gorm:"primaryKey;size:64" json:"restaurant_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"size:255" json:"email"`
	Phone        string    `gorm:"size:64" json:"phone"`
	FiscalCode   string    `gorm:"size:64" json:"fiscal_code"`
	VatNumber    string    `gorm:"size:64" json:"vat_number"`
	Address      string    `gorm:"size:255" json:"address"`
	City         string    `gorm:"size:128" json:"city"`
	ZipCode      string    `gorm:"size:16" json:"zip_code"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PosReceipt struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	RestaurantId string          `gorm:"primaryKey;size:64" json:"restaurant_id"`
	Number       string          `gorm:"size:64" json:"number"`
	Date         time.Time       `gorm:"index" json:"date"`
	Total        decimal.Decimal `gorm:"type:decimal(14,4)" json:"total"`
	Covers       int             `json:"covers"`
	SalesPointId string          `gorm:"size:64" json:"sales_point_id"`
	RoomId       string          `gorm:"size:64" json:"room_id"`
	TableId      string          `gorm:"size:64" json:"table_id"`
	CustomerId   string          `gorm:"size:64" json:"customer_id"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PosReceiptRow struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	RestaurantId string          `gorm:"primaryKey;size:64" json:"restaurant_id"`
	ReceiptId    string          `gorm:"index;size:64;not null" json:"receipt_id"`
	ProductId    string          `gorm:"size:64" json:"product_id"`
	Description  string          `gorm:"size:255" json:"description"`
	Quantity     decimal.Decimal `gorm:"type:decimal(14,4)" json:"quantity"`
	Price        decimal.Decimal `gorm:"type:decimal(14,4)" json:"price"`
	Total        decimal.Decimal `gorm:"type:decimal(14,4)" json:"total"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PosRoom struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	RestaurantId string    `gorm:"primaryKey;size:64" json:"restaurant_id"`
	SalesPointId string    `gorm:"index;size:64" json:"sales_point_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PosTable struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	RestaurantId string    `gorm:"primaryKey;size:64" json:"restaurant_id"`
	SalesPointId string    `gorm:"index;size:64" json:"sales_point_id"`
	RoomId       string    `gorm:"index;size:64" json:"room_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Seats        int       `json:"seats"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PosStockLevel is keyed by the POS product id: KassaCloud reports one stock
// figure per product per restaurant.
type PosStockLevel struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	RestaurantId string          `gorm:"primaryKey;size:64" json:"restaurant_id"`
	Quantity     decimal.Decimal `gorm:"type:decimal(14,4)" json:"quantity"`
	Unit         string          `gorm:"size:32" json:"unit"`
	Available    bool            `gorm:"default:true" json:"available"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PosProductSale is one row of the sold-by-product report for a queried date
// range. The range is part of the key so overlapping reports don't clobber
// each other.
type PosProductSale struct {
	ProductId    string          `gorm:"primaryKey;size:64" json:"product_id"`
	RestaurantId string          `gorm:"primaryKey;size:64" json:"restaurant_id"`
	DateFrom     string          `gorm:"primaryKey;size:10" json:"date_from"`
	DateTo       string          `gorm:"primaryKey;size:10" json:"date_to"`
	Description  string          `gorm:"size:255" json:"description"`
	Quantity     decimal.Decimal `gorm:"type:decimal(14,4)" json:"quantity"`
	Total        decimal.Decimal `gorm:"type:decimal(14,4)" json:"total"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
