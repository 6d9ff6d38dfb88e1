package handler

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-profile-hub/internal/adapter/store"
	"github.com/arturoeanton/go-profile-hub/internal/middleware"
)

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	store *store.PostgresStore
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(store *store.PostgresStore) *AuditHandler {
	return &AuditHandler{store: store}
}

// Register sets up audit routes.
func (h *AuditHandler) Register(router fiber.Router) {
	audit := router.Group("/audit")
	audit.Get("/logs", h.ListLogs)
}

// ListLogs returns audit logs with optional filtering.
func (h *AuditHandler) ListLogs(c fiber.Ctx) error {
	limitStr := c.Query("limit", "100")
	limit, _ := strconv.Atoi(limitStr)
	action := c.Query("action", "")

	logs, err := h.store.ListAuditLogs(c.Context(), limit, action)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"count": len(logs),
	})
}

// recordAction writes a domain-level audit entry for a significant mutation,
// on top of the per-request trail the audit middleware keeps.
func recordAction(w middleware.AuditWriter, c fiber.Ctx, action, resource, resourceID string) {
	userID := "anonymous"
	if uc := middleware.GetUserContext(c); uc != nil {
		userID = uc.UserID
	}
	if err := w.WriteAudit(userID, action, resource, resourceID, "", c.IP(), c.Get("User-Agent")); err != nil {
		slog.Warn("failed to record audit action", "action", action, "error", err)
	}
}
