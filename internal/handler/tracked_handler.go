package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-profile-hub/internal/adapter/store"
	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

// TrackedHandler manages which (instance, template) pairs are auto-synced.
type TrackedHandler struct {
	store *store.PostgresStore
}

// NewTrackedHandler creates a new tracked-template handler.
func NewTrackedHandler(s *store.PostgresStore) *TrackedHandler {
	return &TrackedHandler{store: s}
}

// Register sets up tracked-template routes.
func (h *TrackedHandler) Register(api fiber.Router) {
	api.Get("/tracked", h.List)
	api.Post("/tracked", h.Create)
	api.Put("/tracked/:id", h.UpdateSettings)
	api.Delete("/tracked/:id", h.Delete)
}

// List returns every tracked template, enabled or not.
func (h *TrackedHandler) List(c fiber.Ctx) error {
	tracked, err := h.store.ListTracked(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if tracked == nil {
		tracked = []domain.TrackedTemplate{}
	}
	return c.JSON(tracked)
}

// Create opts an (instance, template) pair into automatic synchronization.
func (h *TrackedHandler) Create(c fiber.Ctx) error {
	var body struct {
		InstanceID   string              `json:"instance_id"`
		TemplateID   string              `json:"template_id"`
		DefinitionID string              `json:"definition_id"`
		Settings     domain.SyncSettings `json:"sync_settings"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	if body.InstanceID == "" || body.TemplateID == "" || body.DefinitionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "instance_id, template_id and definition_id are required",
		})
	}
	if err := validateSettings(&body.Settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	// Reject references to instances that do not exist up front; the FK
	// would catch it anyway but this gives a clean 404.
	if _, err := h.store.GetInstance(c.Context(), body.InstanceID); err != nil {
		if errors.Is(err, port.ErrInstanceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "instance not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	created, err := h.store.CreateTrackedTemplate(c.Context(), &domain.TrackedTemplate{
		InstanceID:   body.InstanceID,
		TemplateID:   body.TemplateID,
		DefinitionID: body.DefinitionID,
		Settings:     body.Settings,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	recordAction(h.store, c, domain.AuditActionTrackingChange, "tracked", created.ID)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateSettings replaces a tracked template's sync settings.
func (h *TrackedHandler) UpdateSettings(c fiber.Ctx) error {
	id := c.Params("id")

	var body domain.SyncSettings
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validateSettings(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	updated, err := h.store.UpdateSyncSettings(c.Context(), id, body)
	if err != nil {
		if errors.Is(err, port.ErrTemplateNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tracked template not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	recordAction(h.store, c, domain.AuditActionTrackingChange, "tracked", id)
	return c.JSON(updated)
}

// Delete removes tracking for one pair. The deployed configuration on the
// instance is left as is.
func (h *TrackedHandler) Delete(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.store.DeleteTrackedTemplate(c.Context(), id); err != nil {
		if errors.Is(err, port.ErrTemplateNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tracked template not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	recordAction(h.store, c, domain.AuditActionTrackingChange, "tracked", id)
	return c.JSON(fiber.Map{"status": "deleted"})
}

func validateSettings(s *domain.SyncSettings) error {
	switch s.IntervalType {
	case "":
		s.IntervalType = domain.IntervalDisabled
	case domain.IntervalDisabled, domain.IntervalHourly, domain.IntervalDaily, domain.IntervalWeekly:
	default:
		return errors.New("interval_type must be DISABLED, HOURLY, DAILY or WEEKLY")
	}
	if s.IntervalValue < 0 {
		return errors.New("interval_value must not be negative")
	}
	if s.IntervalValue == 0 {
		s.IntervalValue = 1
	}
	return nil
}
