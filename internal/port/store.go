package port

import (
	"context"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
)

// VersionStore persists the last-processed guide version.
type VersionStore interface {
	// LastVersion returns the recorded baseline, or a zero version if no pass
	// has ever completed a fetch.
	LastVersion(ctx context.Context) (domain.GuideVersion, error)

	// RecordVersion persists a new baseline after fetch and cache succeeded.
	RecordVersion(ctx context.Context, v domain.GuideVersion) error
}

// DefinitionCache durably stores fetched definitions keyed by version.
type DefinitionCache interface {
	// Get returns the definitions stored for version, or ErrCacheMiss.
	// A hit returns byte-for-byte the payloads previously stored; an empty
	// definition set stored for a version is a hit, not a miss.
	Get(ctx context.Context, version string) ([]domain.CachedDefinition, error)

	// Put stores definitions for a version. Storing identical content twice is
	// a no-op; differing content for an existing version returns
	// CacheConsistencyError.
	Put(ctx context.Context, version string, defs []domain.CachedDefinition) error
}

// TrackedTemplateStore reads and mutates tracked (instance, template) pairs.
type TrackedTemplateStore interface {
	// ListEnabled returns all tracked templates with sync enabled.
	ListEnabled(ctx context.Context) ([]domain.TrackedTemplate, error)

	// AdvanceSyncedVersion records a successful deployment: sets
	// last_synced_version and last_run_at for one (instance, template) pair.
	AdvanceSyncedVersion(ctx context.Context, instanceID, templateID, version string) error

	// TouchRun updates last_run_at without advancing the synced version, used
	// for skipped evaluations of schedule-driven templates.
	TouchRun(ctx context.Context, instanceID, templateID string) error
}

// InstanceStore reads registered instances.
type InstanceStore interface {
	// GetInstance returns one instance by ID, or ErrInstanceNotFound.
	GetInstance(ctx context.Context, id string) (*domain.Instance, error)
}

// OutcomeStore persists per-run deployment outcomes for operator visibility.
type OutcomeStore interface {
	// SaveOutcomes replaces the most recent run's outcomes.
	SaveOutcomes(ctx context.Context, outcomes []domain.DeploymentOutcome) error

	// LastOutcomes returns the most recent run's outcomes.
	LastOutcomes(ctx context.Context) ([]domain.DeploymentOutcome, error)
}
