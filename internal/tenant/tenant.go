package tenant

import (
	"context"
	"net/url"
	"strings"

	"github.com/frahmantamala/song-requests/internal/core/datamodel/organization"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id string) (*organization.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*organization.Organization, error)
	Create(ctx context.Context, org *organization.Organization) error
	List(ctx context.Context) ([]*organization.Organization, error)
}

// Signals are the request hints a resolver may use to find the organization.
type Signals struct {
	ExplicitOrganizationID string
	Referer                string
	Origin                 string
	EventCode              string
}

// Strategy is one step of the resolution cascade.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, signals Signals) (orgID string, ok bool)
}

// reservedSegments are app routes, never organization slugs.
var reservedSegments = map[string]bool{
	"api":      true,
	"requests": true,
	"request":  true,
	"r":        true,
	"events":   true,
	"checkout": true,
}

// SlugFromURL returns the lowercased first path segment of raw, or empty.
func SlugFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	segment := strings.ToLower(strings.SplitN(path, "/", 2)[0])
	if reservedSegments[segment] {
		return ""
	}
	return segment
}

// NormalizeSlug lowercases and trims a candidate slug.
func NormalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
