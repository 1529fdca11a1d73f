package models

import "github.com/google/uuid"

type Address struct {
	BaseModel
	UserID      uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Label       string    `json:"label"`
	AddressLine string    `json:"address_line"`
	City        string    `json:"city"`
	Pincode     string    `json:"pincode"`
	IsDefault   bool      `json:"is_default"`
}

func (Address) TableName() string { return "addresses" }
