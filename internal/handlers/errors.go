package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/plattr/internal/services"
)

// fail maps a service error to the HTTP error the ErrorHandler renders.
func fail(err error) error {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		return fiber.NewError(fiber.StatusBadRequest, validation.Message)
	case errors.Is(err, services.ErrAuthRequired):
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	case errors.Is(err, services.ErrExpired):
		return fiber.NewError(fiber.StatusGone, "OTP has expired")
	case errors.Is(err, services.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, notFoundMessage(err))
	case errors.Is(err, services.ErrEmptyCart):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "cart is empty")
	case errors.Is(err, services.ErrPaymentConfig):
		return fiber.NewError(fiber.StatusServiceUnavailable, "payments are not configured")
	case errors.Is(err, services.ErrStore):
		var storeErr *services.StoreError
		if errors.As(err, &storeErr) {
			return fiber.NewError(fiber.StatusBadGateway, storeErr.Action)
		}
		return fiber.NewError(fiber.StatusBadGateway, "upstream store unavailable")
	default:
		return err
	}
}

// notFoundMessage keeps the service's context, e.g. "order <id>" or "invalid or expired OTP".
func notFoundMessage(err error) string {
	msg, found := strings.CutSuffix(err.Error(), ": "+services.ErrNotFound.Error())
	if !found || msg == "" {
		return "not found"
	}
	return msg
}

// ErrorHandler renders every error as {"success": false, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}
