package models

import "github.com/google/uuid"

// CartItem is one cart line. (user_id, dish_id) is unique.
type CartItem struct {
	BaseModel
	UserID   uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_cart_items_user_dish" json:"user_id"`
	DishID   uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_cart_items_user_dish" json:"dish_id"`
	Quantity int       `json:"quantity"`
}

func (CartItem) TableName() string { return "cart_items" }
