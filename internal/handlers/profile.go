package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/plattr/internal/middleware"
	"github.com/example/plattr/internal/services"
)

// ProfileHandler manages the caller's address book.
type ProfileHandler struct {
	addresses *services.AddressService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(addresses *services.AddressService) *ProfileHandler {
	return &ProfileHandler{addresses: addresses}
}

// ListAddresses returns the caller's addresses.
func (h *ProfileHandler) ListAddresses(c *fiber.Ctx) error {
	addresses, err := h.addresses.ListAddresses(c.UserContext(), middleware.CurrentSession(c))
	if err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": addresses})
}

// CreateAddress adds an address.
func (h *ProfileHandler) CreateAddress(c *fiber.Ctx) error {
	var req services.AddressInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	address, err := h.addresses.CreateAddress(c.UserContext(), middleware.CurrentSession(c), req)
	if err != nil {
		return fail(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": address})
}

// UpdateAddress updates a user address.
func (h *ProfileHandler) UpdateAddress(c *fiber.Ctx) error {
	addrID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req services.AddressUpdate
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.addresses.UpdateAddress(c.UserContext(), middleware.CurrentSession(c), addrID, req); err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "address updated"})
}

// DeleteAddress removes a user address.
func (h *ProfileHandler) DeleteAddress(c *fiber.Ctx) error {
	addrID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if err := h.addresses.DeleteAddress(c.UserContext(), middleware.CurrentSession(c), addrID); err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "address deleted"})
}
