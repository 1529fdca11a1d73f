package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/plattr/internal/middleware"
	"github.com/example/plattr/internal/services"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type createOrderRequest struct {
	AddressID    string `json:"address_id"`
	DeliveryDate string `json:"delivery_date"`
	DeliveryTime string `json:"delivery_time"`
}

// CreateOrder places an order for the caller's cart.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	addressID, err := uuid.Parse(req.AddressID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid address_id")
	}
	if req.DeliveryDate == "" || req.DeliveryTime == "" {
		return fiber.NewError(fiber.StatusBadRequest, "delivery_date and delivery_time are required")
	}

	order, err := h.orders.CreateOrder(c.UserContext(), middleware.CurrentSession(c), services.OrderRequest{
		AddressID:    addressID,
		DeliveryDate: req.DeliveryDate,
		DeliveryTime: req.DeliveryTime,
	})
	if err != nil {
		return fail(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    order,
	})
}

// ListOrders returns the caller's orders, newest first.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	orders, err := h.orders.GetOrders(c.UserContext(), middleware.CurrentSession(c))
	if err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": orders})
}

// GetOrder returns one of the caller's orders with its items and address.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	details, err := h.orders.GetOrderDetails(c.UserContext(), middleware.CurrentSession(c), orderID)
	if err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": details})
}
