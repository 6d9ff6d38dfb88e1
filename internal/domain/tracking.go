package domain

import "time"

// IntervalType defines how often a tracked template is re-evaluated
// independently of upstream version changes.
type IntervalType string

const (
	IntervalDisabled IntervalType = "DISABLED"
	IntervalHourly   IntervalType = "HOURLY"
	IntervalDaily    IntervalType = "DAILY"
	IntervalWeekly   IntervalType = "WEEKLY"
)

// SyncSettings controls automatic synchronization for one tracked template.
type SyncSettings struct {
	Enabled       bool         `json:"enabled"        db:"enabled"`
	IntervalType  IntervalType `json:"interval_type"  db:"interval_type"`
	IntervalValue int          `json:"interval_value" db:"interval_value"`
}

// Due reports whether the wall-clock schedule has elapsed since the last run.
// A zero lastRun means the template has never been evaluated and is due
// immediately. DISABLED schedules are never due on time alone.
func (s SyncSettings) Due(lastRun, now time.Time) bool {
	if s.IntervalType == IntervalDisabled || s.IntervalType == "" {
		return false
	}
	if lastRun.IsZero() {
		return true
	}

	value := s.IntervalValue
	if value < 1 {
		value = 1
	}

	var unit time.Duration
	switch s.IntervalType {
	case IntervalHourly:
		unit = time.Hour
	case IntervalDaily:
		unit = 24 * time.Hour
	case IntervalWeekly:
		unit = 7 * 24 * time.Hour
	default:
		return false
	}

	return now.Sub(lastRun) >= time.Duration(value)*unit
}

// TrackedTemplate is an (instance, template) pair a user opted into automatic
// synchronization. LastSyncedVersion only advances after a successful
// deployment of that exact pair.
type TrackedTemplate struct {
	ID                string       `json:"id"                  db:"id"`
	InstanceID        string       `json:"instance_id"         db:"instance_id"`
	TemplateID        string       `json:"template_id"         db:"template_id"`
	DefinitionID      string       `json:"definition_id"       db:"definition_id"`
	LastSyncedVersion string       `json:"last_synced_version" db:"last_synced_version"`
	Settings          SyncSettings `json:"sync_settings"       db:"-"`
	LastRunAt         time.Time    `json:"last_run_at"         db:"last_run_at"`
	CreatedAt         time.Time    `json:"created_at"          db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"          db:"updated_at"`
}
