package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

// GuideService tracks the upstream guide version and keeps a durable cache of
// fetched definitions. A full fetch only happens when the upstream head moved
// or the cache lost the current version.
type GuideService struct {
	source   port.GuideSource
	versions port.VersionStore
	cache    port.DefinitionCache
	logger   *slog.Logger
}

// NewGuideService creates a new guide service.
func NewGuideService(source port.GuideSource, versions port.VersionStore, cache port.DefinitionCache, logger *slog.Logger) *GuideService {
	return &GuideService{source: source, versions: versions, cache: cache, logger: logger}
}

// Refresh returns the current guide version and its definitions.
//
// The cheap head check runs first; if the version is unchanged and cached, no
// content is fetched. On a changed version (or a cache miss for the current
// one) the full definition set is fetched, cached, and the baseline advances.
// The baseline advances once fetch and cache succeed; per-template deployment
// failures later in the pass do not roll it back, since it only gates
// re-fetching, not per-template redeploy decisions.
func (s *GuideService) Refresh(ctx context.Context, repo domain.RepoConfig) (domain.GuideVersion, []domain.CachedDefinition, error) {
	head, err := s.source.HeadVersion(ctx, repo)
	if err != nil {
		return domain.GuideVersion{}, nil, err
	}

	last, err := s.versions.LastVersion(ctx)
	if err != nil {
		return domain.GuideVersion{}, nil, fmt.Errorf("load version baseline: %w", err)
	}

	if !last.IsZero() && head.Equal(last) {
		defs, err := s.cache.Get(ctx, last.CommitSHA)
		if err == nil {
			s.logger.Debug("guide version unchanged, serving from cache",
				"version", last.CommitSHA, "definitions", len(defs))
			return last, defs, nil
		}
		if !errors.Is(err, port.ErrCacheMiss) {
			return domain.GuideVersion{}, nil, err
		}
		s.logger.Warn("cache miss for current version, re-fetching", "version", last.CommitSHA)
	}

	version, defs, err := s.source.FetchDefinitions(ctx, repo)
	if err != nil {
		return domain.GuideVersion{}, nil, err
	}
	s.logger.Info("fetched guide definitions",
		"version", version.CommitSHA, "definitions", len(defs))

	if err := s.cache.Put(ctx, version.CommitSHA, defs); err != nil {
		return domain.GuideVersion{}, nil, err
	}
	if err := s.versions.RecordVersion(ctx, version); err != nil {
		return domain.GuideVersion{}, nil, fmt.Errorf("record version baseline: %w", err)
	}

	return version, defs, nil
}
