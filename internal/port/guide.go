package port

import (
	"context"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
)

// GuideSource abstracts the upstream guide repository.
// Implementations retrieve the current version token cheaply and, when the
// version changed, the full set of definitions.
type GuideSource interface {
	// HeadVersion returns the current version of the guide repository via a
	// lightweight metadata call.
	HeadVersion(ctx context.Context, repo domain.RepoConfig) (domain.GuideVersion, error)

	// FetchDefinitions retrieves every definition at the repository's current
	// head, together with the version they belong to.
	FetchDefinitions(ctx context.Context, repo domain.RepoConfig) (domain.GuideVersion, []domain.CachedDefinition, error)
}
