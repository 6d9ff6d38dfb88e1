package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/middleware"
	"github.com/arturoeanton/go-profile-hub/internal/port"
	"github.com/arturoeanton/go-profile-hub/internal/service"
)

// SyncHandler exposes the synchronization engine over HTTP.
type SyncHandler struct {
	scheduler *service.Scheduler
	audit     middleware.AuditWriter
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(scheduler *service.Scheduler, audit middleware.AuditWriter) *SyncHandler {
	return &SyncHandler{scheduler: scheduler, audit: audit}
}

// Register sets up sync routes.
func (h *SyncHandler) Register(api fiber.Router) {
	api.Get("/sync/status", h.Status)
	api.Post("/sync/run", h.Run)
}

// Status reports the scheduler state and the outcomes of the last pass.
func (h *SyncHandler) Status(c fiber.Ctx) error {
	state, outcomes, err := h.scheduler.Status(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if outcomes == nil {
		outcomes = []domain.DeploymentOutcome{}
	}

	return c.JSON(fiber.Map{
		"state":     state,
		"outcomes":  outcomes,
		"instances": domain.SummarizeOutcomes(outcomes),
	})
}

// Run triggers a sync pass immediately. The pass executes in the background;
// a second trigger while one is running is rejected with 409.
func (h *SyncHandler) Run(c fiber.Ctx) error {
	if err := h.scheduler.TriggerNow(); err != nil {
		if errors.Is(err, port.ErrRunInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sync already running"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	recordAction(h.audit, c, domain.AuditActionSyncRun, "sync", "manual")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}
