package models

// Table names used by services when addressing the record store.
const (
	TableUsers            = "users"
	TableOTPVerifications = "otp_verifications"
	TableCategories       = "categories"
	TableDishes           = "dishes"
	TableCartItems        = "cart_items"
	TableOrders           = "orders"
	TableOrderItems       = "order_items"
	TableAddresses        = "addresses"
)

// Registry maps every table to a zero value of its model.
func Registry() map[string]any {
	return map[string]any{
		TableUsers:            &User{},
		TableOTPVerifications: &OTPVerification{},
		TableCategories:       &Category{},
		TableDishes:           &Dish{},
		TableCartItems:        &CartItem{},
		TableOrders:           &Order{},
		TableOrderItems:       &OrderItem{},
		TableAddresses:        &Address{},
	}
}
