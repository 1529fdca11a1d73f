package models

import "time"

// User is a phone-verified customer. Phone is the natural key.
type User struct {
	BaseModel
	Username   string `json:"username"`
	Phone      string `gorm:"uniqueIndex" json:"phone"`
	IsVerified bool   `json:"is_verified"`
}

func (User) TableName() string { return "users" }

// OTPVerification is a single issued code for a phone number.
type OTPVerification struct {
	BaseModel
	Phone     string    `gorm:"index" json:"phone"`
	OTP       string    `gorm:"column:otp" json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
	IsUsed    bool      `gorm:"default:false" json:"is_used"`
}

func (OTPVerification) TableName() string { return "otp_verifications" }

// Expired reports whether the code can no longer be redeemed at now.
func (v OTPVerification) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
