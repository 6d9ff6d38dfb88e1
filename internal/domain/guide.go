package domain

import (
	"encoding/json"
	"time"
)

// RepoConfig identifies the upstream guide repository. It is re-resolved at
// the start of every sync pass so a settings change takes effect without a
// restart.
type RepoConfig struct {
	Owner  string `json:"owner"  yaml:"owner"`
	Name   string `json:"name"   yaml:"name"`
	Branch string `json:"branch" yaml:"branch"`
}

// IsComplete reports whether all repository coordinates are present.
func (r RepoConfig) IsComplete() bool {
	return r.Owner != "" && r.Name != "" && r.Branch != ""
}

// GuideVersion is an opaque version token for the upstream guide repository.
// Only equality is meaningful; there is no ordering between versions.
type GuideVersion struct {
	CommitSHA string    `json:"commit_sha" db:"commit_sha"`
	FetchedAt time.Time `json:"fetched_at" db:"fetched_at"`
}

// Equal compares two versions by their commit SHA.
func (v GuideVersion) Equal(other GuideVersion) bool {
	return v.CommitSHA == other.CommitSHA
}

// IsZero reports whether no version has been recorded yet.
func (v GuideVersion) IsZero() bool {
	return v.CommitSHA == ""
}

// CachedDefinition is one upstream definition stored for a specific guide
// version. Entries are written once per version and never mutated in place.
type CachedDefinition struct {
	DefinitionID string          `json:"definition_id" db:"definition_id"`
	Kind         string          `json:"kind"          db:"kind"` // format, qualityProfile
	Payload      json.RawMessage `json:"payload"       db:"payload"`
	Version      string          `json:"version"       db:"version"`
}

// Definition kind constants.
const (
	DefinitionKindFormat         = "format"
	DefinitionKindQualityProfile = "qualityProfile"
)
