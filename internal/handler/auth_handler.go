package handler

import (
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/middleware"
	"github.com/arturoeanton/go-profile-hub/pkg/config"
)

// AuthHandler issues dashboard tokens against the configured admin account.
type AuthHandler struct {
	cfg   *config.Config
	audit middleware.AuditWriter
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(cfg *config.Config, audit middleware.AuditWriter) *AuthHandler {
	return &AuthHandler{cfg: cfg, audit: audit}
}

// Register sets up auth routes.
func (h *AuthHandler) Register(app *fiber.App) {
	app.Post("/api/v1/auth/login", h.Login)
}

// Login validates the admin credentials and returns a signed JWT.
// Login is disabled entirely until ADMIN_PASSWORD is set.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	if h.cfg.AdminPassword == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "login disabled: no admin password configured",
		})
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	// Compare both fields unconditionally so failures take the same time
	// regardless of which field mismatched.
	userOK := subtle.ConstantTimeCompare([]byte(body.Username), []byte(h.cfg.AdminUser))
	passOK := subtle.ConstantTimeCompare([]byte(body.Password), []byte(h.cfg.AdminPassword))
	if userOK&passOK != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}

	token, err := middleware.GenerateJWT(h.cfg.AdminUser, h.cfg.AdminUser, "admin", middleware.JWTConfig{
		Secret:    h.cfg.JWTSecret,
		Issuer:    h.cfg.JWTIssuer,
		ExpiresIn: time.Duration(h.cfg.JWTExpiration) * time.Hour,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "generate token"})
	}

	if err := h.audit.WriteAudit(h.cfg.AdminUser, domain.AuditActionLogin, "auth", h.cfg.AdminUser, "", c.IP(), c.Get("User-Agent")); err != nil {
		slog.Warn("failed to record audit action", "action", domain.AuditActionLogin, "error", err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"name": h.cfg.AdminUser,
			"role": "admin",
		},
	})
}
