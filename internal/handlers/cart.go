package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/plattr/internal/middleware"
	"github.com/example/plattr/internal/services"
)

// CartHandler manages cart endpoints.
type CartHandler struct {
	cart *services.CartService
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(cart *services.CartService) *CartHandler {
	return &CartHandler{cart: cart}
}

// GetCart returns the caller's cart. Anonymous callers get an empty cart.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	lines, err := h.cart.GetCart(c.UserContext(), middleware.CurrentSession(c))
	if err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": lines})
}

type addToCartRequest struct {
	DishID   string `json:"dish_id"`
	Quantity *int   `json:"quantity"`
}

// AddToCart adds a dish, merging with an existing line. Quantity defaults to 1.
func (h *CartHandler) AddToCart(c *fiber.Ctx) error {
	var req addToCartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	dishID, err := uuid.Parse(req.DishID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid dish_id")
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	line, err := h.cart.AddToCart(c.UserContext(), middleware.CurrentSession(c), dishID, quantity)
	if err != nil {
		return fail(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": line})
}

type updateCartRequest struct {
	Quantity *int `json:"quantity"`
}

// UpdateCartItem sets a line's quantity; zero removes the line.
func (h *CartHandler) UpdateCartItem(c *fiber.Ctx) error {
	lineID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateCartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Quantity == nil {
		return fiber.NewError(fiber.StatusBadRequest, "quantity is required")
	}

	if err := h.cart.UpdateCartItem(c.UserContext(), middleware.CurrentSession(c), lineID, *req.Quantity); err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "cart updated"})
}

// RemoveFromCart deletes a line.
func (h *CartHandler) RemoveFromCart(c *fiber.Ctx) error {
	lineID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if err := h.cart.RemoveFromCart(c.UserContext(), middleware.CurrentSession(c), lineID); err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "item removed"})
}

// ClearCart empties the caller's cart.
func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	if err := h.cart.ClearCart(c.UserContext(), middleware.CurrentSession(c)); err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "cart cleared"})
}
