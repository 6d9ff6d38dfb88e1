package domain

import (
	"encoding/json"
	"time"
)

// OutcomeStatus is the result of applying one planned deployment.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// DeploymentOutcome records the result of one (instance, template) deployment
// within a sync pass. Persisted for operator visibility only.
type DeploymentOutcome struct {
	InstanceID  string    `json:"instance_id"  db:"instance_id"`
	TemplateID  string    `json:"template_id"  db:"template_id"`
	Status      string    `json:"status"       db:"status"` // success, failed, skipped
	Error       string    `json:"error,omitempty" db:"error"`
	Timestamp   time.Time `json:"timestamp"    db:"timestamp"`
	ItemsSynced int       `json:"items_synced" db:"items_synced"`
}

// PlannedDeployment is one recomputed payload destined for a single instance.
type PlannedDeployment struct {
	TemplateID   string
	DefinitionID string
	Kind         string
	Version      string
	Payload      json.RawMessage
}

// DeploymentPlan maps instance IDs to the ordered deployments for that
// instance. An empty plan is a valid, common outcome of reconciliation.
type DeploymentPlan struct {
	Version    GuideVersion
	ByInstance map[string][]PlannedDeployment
	PreSkipped []DeploymentOutcome // definitions missing upstream, decided at plan time
}

// IsEmpty reports whether the plan contains no deployments and no skips.
func (p *DeploymentPlan) IsEmpty() bool {
	return len(p.ByInstance) == 0 && len(p.PreSkipped) == 0
}

// Deployments returns the total number of planned deployments.
func (p *DeploymentPlan) Deployments() int {
	n := 0
	for _, items := range p.ByInstance {
		n += len(items)
	}
	return n
}

// SchedulerState is the process-wide scheduler status exposed to the UI.
type SchedulerState struct {
	Enabled       bool      `json:"enabled"`
	IntervalHours int       `json:"interval_hours"`
	Running       bool      `json:"running"`
	LastRunAt     time.Time `json:"last_run_at,omitempty"`
	NextRunAt     time.Time `json:"next_run_at,omitempty"`
}

// InstanceRunStats aggregates a pass's outcomes for one instance.
type InstanceRunStats struct {
	InstanceID string `json:"instance_id"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	FirstError string `json:"first_error,omitempty"`
}

// SummarizeOutcomes groups per-item outcomes into per-instance stats.
func SummarizeOutcomes(outcomes []DeploymentOutcome) []InstanceRunStats {
	byInstance := make(map[string]*InstanceRunStats)
	order := make([]string, 0)

	for _, o := range outcomes {
		stats, ok := byInstance[o.InstanceID]
		if !ok {
			stats = &InstanceRunStats{InstanceID: o.InstanceID}
			byInstance[o.InstanceID] = stats
			order = append(order, o.InstanceID)
		}
		switch o.Status {
		case OutcomeSuccess:
			stats.Succeeded++
		case OutcomeFailed:
			stats.Failed++
			if stats.FirstError == "" {
				stats.FirstError = o.Error
			}
		case OutcomeSkipped:
			stats.Skipped++
		}
	}

	result := make([]InstanceRunStats, 0, len(order))
	for _, id := range order {
		result = append(result, *byInstance[id])
	}
	return result
}
