package tenant

import (
	"context"
	"log/slog"
)

type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewResolver(logger *slog.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, logger: logger}
}

// NewDefaultResolver wires the standard cascade: explicit id, Referer slug, Origin
// slug, event code, platform default.
func NewDefaultResolver(repo RepositoryAPI, defaultSlug string, logger *slog.Logger) *Resolver {
	return NewResolver(logger,
		ExplicitStrategy{},
		&SlugStrategy{name: "referer", repo: repo, logger: logger, pick: func(s Signals) string { return SlugFromURL(s.Referer) }},
		&SlugStrategy{name: "origin", repo: repo, logger: logger, pick: func(s Signals) string { return SlugFromURL(s.Origin) }},
		&SlugStrategy{name: "event_code", repo: repo, logger: logger, pick: func(s Signals) string { return NormalizeSlug(s.EventCode) }},
		&SlugStrategy{name: "platform_default", repo: repo, logger: logger, pick: func(Signals) string { return NormalizeSlug(defaultSlug) }},
	)
}

// Resolve never fails; an empty result means the request will be orphaned.
func (r *Resolver) Resolve(ctx context.Context, signals Signals) string {
	for _, s := range r.strategies {
		if orgID, ok := s.Resolve(ctx, signals); ok {
			r.logger.Info("organization resolved", "strategy", s.Name(), "organization_id", orgID)
			return orgID
		}
	}
	r.logger.Warn("organization unresolved, request will be orphaned",
		"referer", signals.Referer,
		"origin", signals.Origin,
		"event_code", signals.EventCode)
	return ""
}

type ExplicitStrategy struct{}

func (ExplicitStrategy) Name() string { return "explicit" }

func (ExplicitStrategy) Resolve(_ context.Context, s Signals) (string, bool) {
	return s.ExplicitOrganizationID, s.ExplicitOrganizationID != ""
}

// SlugStrategy looks up an organization by a slug picked from the signals.
type SlugStrategy struct {
	name   string
	repo   RepositoryAPI
	logger *slog.Logger
	pick   func(Signals) string
}

func NewSlugStrategy(name string, repo RepositoryAPI, logger *slog.Logger, pick func(Signals) string) *SlugStrategy {
	return &SlugStrategy{name: name, repo: repo, logger: logger, pick: pick}
}

func (s *SlugStrategy) Name() string { return s.name }

func (s *SlugStrategy) Resolve(ctx context.Context, signals Signals) (string, bool) {
	slug := s.pick(signals)
	if slug == "" {
		return "", false
	}
	org, err := s.repo.GetBySlug(ctx, slug)
	if err != nil || org == nil {
		s.logger.Debug("slug lookup missed", "strategy", s.name, "slug", slug, "error", err)
		return "", false
	}
	return org.ID, true
}
