package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending = "pending"

	// FirstOrderNumber is allocated when no order exists yet.
	FirstOrderNumber int64 = 10000001
)

type Order struct {
	BaseModel
	OrderNumber  int64           `gorm:"uniqueIndex" json:"order_number"`
	UserID       uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	AddressID    uuid.UUID       `gorm:"type:uuid" json:"address_id"`
	Subtotal     decimal.Decimal `gorm:"type:numeric(12,2)" json:"subtotal"`
	DeliveryFee  decimal.Decimal `gorm:"type:numeric(12,2)" json:"delivery_fee"`
	Tax          decimal.Decimal `gorm:"type:numeric(12,2)" json:"tax"`
	Total        decimal.Decimal `gorm:"type:numeric(12,2)" json:"total"`
	DeliveryDate string          `json:"delivery_date"`
	DeliveryTime string          `json:"delivery_time"`
	Status       string          `json:"status"`
	Items        []OrderItem     `gorm:"-" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }

// OrderItem keeps the dish price at order time so later catalog changes do not touch history.
type OrderItem struct {
	BaseModel
	OrderID  uuid.UUID       `gorm:"type:uuid;index" json:"order_id"`
	DishID   uuid.UUID       `gorm:"type:uuid" json:"dish_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `gorm:"type:numeric(10,2)" json:"price"`
}

func (OrderItem) TableName() string { return "order_items" }
