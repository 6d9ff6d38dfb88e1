package handler

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-profile-hub/internal/adapter/store"
	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

// InstanceHandler handles instance registration and removal.
type InstanceHandler struct {
	store       *store.PostgresStore
	credentials port.CredentialResolver
}

// NewInstanceHandler creates a new instance handler.
func NewInstanceHandler(s *store.PostgresStore, credentials port.CredentialResolver) *InstanceHandler {
	return &InstanceHandler{store: s, credentials: credentials}
}

// Register sets up instance routes.
func (h *InstanceHandler) Register(api fiber.Router) {
	api.Get("/instances", h.List)
	api.Post("/instances", h.Create)
	api.Delete("/instances/:id", h.Delete)
}

// List returns all registered instances. Encrypted keys are never serialized.
func (h *InstanceHandler) List(c fiber.Ctx) error {
	instances, err := h.store.ListInstances(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if instances == nil {
		instances = []domain.Instance{}
	}
	return c.JSON(instances)
}

// Create registers a new instance. The API key is encrypted at rest and only
// decrypted at the moment of deployment.
func (h *InstanceHandler) Create(c fiber.Ctx) error {
	var body struct {
		Label   string `json:"label"`
		Kind    string `json:"kind"`
		BaseURL string `json:"base_url"`
		APIKey  string `json:"api_key"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	body.Label = strings.TrimSpace(body.Label)
	body.BaseURL = strings.TrimRight(strings.TrimSpace(body.BaseURL), "/")
	if body.Label == "" || body.BaseURL == "" || body.APIKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "label, base_url and api_key are required",
		})
	}
	if body.Kind != domain.InstanceKindRadarr && body.Kind != domain.InstanceKindSonarr {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kind must be radarr or sonarr",
		})
	}
	if u, err := url.Parse(body.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "base_url must be a valid URL"})
	}

	sealed, err := h.credentials.Seal(body.APIKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "encrypt api key: " + err.Error(),
		})
	}

	created, err := h.store.CreateInstance(c.Context(), &domain.Instance{
		Label:           body.Label,
		Kind:            body.Kind,
		BaseURL:         body.BaseURL,
		EncryptedAPIKey: sealed,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	recordAction(h.store, c, domain.AuditActionInstanceCreate, "instance", created.ID)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// Delete removes an instance along with its tracked templates.
func (h *InstanceHandler) Delete(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.store.DeleteInstance(c.Context(), id); err != nil {
		if errors.Is(err, port.ErrInstanceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "instance not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	recordAction(h.store, c, domain.AuditActionInstanceDelete, "instance", id)
	return c.JSON(fiber.Map{"status": "deleted"})
}
