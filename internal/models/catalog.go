package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Category struct {
	BaseModel
	Name     string `json:"name"`
	Slug     string `gorm:"uniqueIndex" json:"slug"`
	ImageURL string `gorm:"column:image_url" json:"image_url"`
}

func (Category) TableName() string { return "categories" }

type Dish struct {
	BaseModel
	CategoryID  *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2)" json:"price"`
	ImageURL    string          `gorm:"column:image_url" json:"image_url"`
	IsAvailable bool            `json:"is_available"`
}

func (Dish) TableName() string { return "dishes" }
