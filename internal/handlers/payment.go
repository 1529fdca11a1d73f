package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/plattr/internal/middleware"
	"github.com/example/plattr/internal/services"
)

// PaymentHandler exposes pricing and card confirmation.
type PaymentHandler struct {
	payments *services.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Quote prices the caller's cart.
func (h *PaymentHandler) Quote(c *fiber.Ctx) error {
	quote, err := h.payments.Quote(c.UserContext(), middleware.CurrentSession(c))
	if err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": quote})
}

// CreateIntent is answered with 503 until a secret-key backend issues client secrets.
func (h *PaymentHandler) CreateIntent(c *fiber.Ctx) error {
	intent, err := h.payments.CreatePaymentIntent(c.UserContext(), middleware.CurrentSession(c))
	if err != nil {
		return fail(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": intent})
}

type confirmPaymentRequest struct {
	ClientSecret    string `json:"client_secret"`
	PaymentMethodID string `json:"payment_method"`
}

// Confirm confirms a card payment. A declined card is a 402 carrying the processor's message.
func (h *PaymentHandler) Confirm(c *fiber.Ctx) error {
	var req confirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	res, err := h.payments.ProcessPayment(c.UserContext(), req.ClientSecret, req.PaymentMethodID)
	if err != nil {
		return fail(err)
	}
	if !res.Success {
		return c.Status(fiber.StatusPaymentRequired).JSON(res)
	}
	return c.JSON(res)
}
