package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/plattr/internal/middleware"
	"github.com/example/plattr/internal/services"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	auth      *services.AuthService
	sessions  session.Provider
	jwtSecret string
	tokenTTL  time.Duration
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *services.AuthService, sessions session.Provider, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

// SendOTP issues a one-time code for the phone number.
func (h *AuthHandler) SendOTP(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	res, err := h.auth.RequestCode(c.UserContext(), req.Phone)
	if err != nil {
		return fail(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "OTP sent successfully",
		"data":    res,
	})
}

type verifyRequest struct {
	Phone    string `json:"phone"`
	OTP      string `json:"otp"`
	Username string `json:"username"`
}

// VerifyOTP redeems a code and signs the caller in on a fresh session.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	// The session handle stores nothing until VerifyCode succeeds and sets it.
	sessionID := uuid.NewString()
	user, err := h.auth.VerifyCode(c.UserContext(), h.sessions.Session(sessionID), req.Phone, req.OTP, req.Username)
	if err != nil {
		return fail(err)
	}

	token, err := utils.GenerateToken(h.jwtSecret, sessionID, h.tokenTTL)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":          user.ID,
			"username":    user.Username,
			"phone":       user.Phone,
			"is_verified": user.IsVerified,
		},
		"token": token,
	})
}

// CheckPhone reports whether a phone number is registered.
func (h *AuthHandler) CheckPhone(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	status, err := h.auth.CheckPhone(c.UserContext(), req.Phone)
	if err != nil {
		return fail(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": status})
}

// Logout clears the caller's session.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.auth.Logout(c.UserContext(), middleware.CurrentSession(c)); err != nil {
		return fail(err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "logged out"})
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.auth.CurrentUser(c.UserContext(), middleware.CurrentSession(c))
	if err != nil {
		return fail(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":          user.ID,
			"username":    user.Username,
			"phone":       user.Phone,
			"is_verified": user.IsVerified,
			"created_at":  user.CreatedAt,
		},
	})
}
