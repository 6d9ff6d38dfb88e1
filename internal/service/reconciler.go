package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

// Reconciler decides which tracked templates need a redeploy and recomputes
// their instance-specific payloads.
type Reconciler struct {
	tracked   port.TrackedTemplateStore
	instances port.InstanceStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler creates a new reconciler.
func NewReconciler(tracked port.TrackedTemplateStore, instances port.InstanceStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{tracked: tracked, instances: instances, logger: logger, now: time.Now}
}

// Reconcile compares every enabled tracked template against the current
// definition set and builds the deployment plan.
//
// A template is planned when its last synced version differs from the
// definition's version OR its wall-clock schedule is due (which allows
// re-applying an unchanged version to repair drift). Definitions missing
// upstream produce skipped outcomes, never a failed pass. An empty plan is a
// valid, common result.
func (r *Reconciler) Reconcile(ctx context.Context, version domain.GuideVersion, defs []domain.CachedDefinition) (*domain.DeploymentPlan, error) {
	tracked, err := r.tracked.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled templates: %w", err)
	}

	byID := make(map[string]domain.CachedDefinition, len(defs))
	for _, d := range defs {
		byID[d.DefinitionID] = d
	}

	plan := &domain.DeploymentPlan{
		Version:    version,
		ByInstance: make(map[string][]domain.PlannedDeployment),
	}
	now := r.now()

	kinds := make(map[string]string) // instanceID -> instance kind, resolved once
	for _, t := range tracked {
		def, ok := byID[t.DefinitionID]
		if !ok {
			r.logger.Warn("definition removed upstream, skipping",
				"instance_id", t.InstanceID, "template_id", t.TemplateID, "definition_id", t.DefinitionID)
			plan.PreSkipped = append(plan.PreSkipped, domain.DeploymentOutcome{
				InstanceID: t.InstanceID,
				TemplateID: t.TemplateID,
				Status:     domain.OutcomeSkipped,
				Error:      fmt.Sprintf("definition %s no longer exists upstream", t.DefinitionID),
				Timestamp:  now,
			})
			continue
		}

		versionChanged := t.LastSyncedVersion != def.Version
		due := t.Settings.Due(t.LastRunAt, now)
		if !versionChanged && !due {
			continue
		}

		kind, ok := kinds[t.InstanceID]
		if !ok {
			inst, err := r.instances.GetInstance(ctx, t.InstanceID)
			if err != nil {
				r.logger.Warn("instance lookup failed, skipping its templates",
					"instance_id", t.InstanceID, "error", err)
				kinds[t.InstanceID] = ""
				plan.PreSkipped = append(plan.PreSkipped, skippedOutcome(t, now, "instance not found"))
				continue
			}
			kind = inst.Kind
			kinds[t.InstanceID] = kind
		}
		if kind == "" {
			plan.PreSkipped = append(plan.PreSkipped, skippedOutcome(t, now, "instance not found"))
			continue
		}

		payload, err := renderPayload(kind, def)
		if err != nil {
			r.logger.Warn("payload recompute failed, skipping",
				"instance_id", t.InstanceID, "template_id", t.TemplateID, "error", err)
			plan.PreSkipped = append(plan.PreSkipped, skippedOutcome(t, now, err.Error()))
			continue
		}

		plan.ByInstance[t.InstanceID] = append(plan.ByInstance[t.InstanceID], domain.PlannedDeployment{
			TemplateID:   t.TemplateID,
			DefinitionID: t.DefinitionID,
			Kind:         def.Kind,
			Version:      def.Version,
			Payload:      payload,
		})
	}

	r.logger.Info("reconciliation complete",
		"version", version.CommitSHA,
		"tracked", len(tracked),
		"planned", plan.Deployments(),
		"skipped", len(plan.PreSkipped))

	return plan, nil
}

func skippedOutcome(t domain.TrackedTemplate, now time.Time, reason string) domain.DeploymentOutcome {
	return domain.DeploymentOutcome{
		InstanceID: t.InstanceID,
		TemplateID: t.TemplateID,
		Status:     domain.OutcomeSkipped,
		Error:      reason,
		Timestamp:  now,
	}
}

// --- Payload recomputation ---

// formatDefinition is the upstream shape of a custom-format definition.
type formatDefinition struct {
	Name           string          `json:"name"`
	Specifications json.RawMessage `json:"specifications"`
	Scores         map[string]int  `json:"scores"`
}

// formatPayload is the deployable shape sent to an instance.
type formatPayload struct {
	Name           string          `json:"name"`
	Score          int             `json:"score"`
	Specifications json.RawMessage `json:"specifications,omitempty"`
}

// profileDefinition is the upstream shape of a quality-profile definition.
type profileDefinition struct {
	Name           string          `json:"name"`
	UpgradeAllowed bool            `json:"upgradeAllowed"`
	Qualities      json.RawMessage `json:"qualities"`
	FormatScores   map[string]int  `json:"formatScores"`
}

// profilePayload is the deployable shape sent to an instance.
type profilePayload struct {
	Name           string          `json:"name"`
	UpgradeAllowed bool            `json:"upgradeAllowed"`
	Qualities      json.RawMessage `json:"qualities,omitempty"`
	FormatItems    []formatItem    `json:"formatItems"`
}

type formatItem struct {
	Format string `json:"format"`
	Score  int    `json:"score"`
}

// renderPayload recomputes the deployable payload for one instance kind.
// Custom formats resolve their per-kind score (falling back to "default");
// quality profiles flatten their format scores into a stable, sorted item
// list. The output is deterministic for identical inputs.
func renderPayload(instanceKind string, def domain.CachedDefinition) (json.RawMessage, error) {
	switch def.Kind {
	case domain.DefinitionKindFormat:
		var fd formatDefinition
		if err := json.Unmarshal(def.Payload, &fd); err != nil {
			return nil, fmt.Errorf("decode format definition %s: %w", def.DefinitionID, err)
		}
		score, ok := fd.Scores[instanceKind]
		if !ok {
			score = fd.Scores["default"]
		}
		return json.Marshal(formatPayload{
			Name:           fd.Name,
			Score:          score,
			Specifications: fd.Specifications,
		})

	case domain.DefinitionKindQualityProfile:
		var pd profileDefinition
		if err := json.Unmarshal(def.Payload, &pd); err != nil {
			return nil, fmt.Errorf("decode profile definition %s: %w", def.DefinitionID, err)
		}
		items := make([]formatItem, 0, len(pd.FormatScores))
		for id, score := range pd.FormatScores {
			items = append(items, formatItem{Format: id, Score: score})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Format < items[j].Format })
		return json.Marshal(profilePayload{
			Name:           pd.Name,
			UpgradeAllowed: pd.UpgradeAllowed,
			Qualities:      pd.Qualities,
			FormatItems:    items,
		})

	default:
		return nil, fmt.Errorf("unknown definition kind %q", def.Kind)
	}
}
