package reconcile

import (
	"context"
	"time"

	errors "github.com/frahmantamala/song-requests/internal"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/request"
)

const (
	StrategyDirect   = "direct"
	StrategyExplicit = "explicit"
	StrategyMetadata = "metadata"
	StrategyFuzzy    = "fuzzy"
)

// Target carries what the caller knows beyond the gateway object itself.
type Target struct {
	RequestID string
}

// Strategy is one step of the matching cascade. An empty result means "try
// the next strategy"; an error stops the cascade.
type Strategy interface {
	Name() string
	Match(ctx context.Context, p *Payment, target Target) ([]*request.Request, error)
}

func notFound(err error) bool {
	return errors.HasCode(err, errors.ErrCodeRequestNotFound)
}

type DirectStrategy struct {
	repo request.RepositoryAPI
}

func (DirectStrategy) Name() string { return StrategyDirect }

func (s DirectStrategy) Match(ctx context.Context, p *Payment, _ Target) ([]*request.Request, error) {
	if p.Ref == "" {
		return nil, nil
	}
	req, err := s.repo.GetByPaymentRef(ctx, p.Ref)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []*request.Request{req}, nil
}

// ExplicitStrategy trusts an operator-supplied request id.
type ExplicitStrategy struct {
	repo request.RepositoryAPI
}

func (ExplicitStrategy) Name() string { return StrategyExplicit }

func (s ExplicitStrategy) Match(ctx context.Context, _ *Payment, target Target) ([]*request.Request, error) {
	if target.RequestID == "" {
		return nil, nil
	}
	req, err := s.repo.GetByID(ctx, target.RequestID)
	if err != nil {
		return nil, err
	}
	return []*request.Request{req}, nil
}

// MetadataStrategy follows the request id stamped on the session at checkout,
// then the stored session ref.
type MetadataStrategy struct {
	repo request.RepositoryAPI
}

func (MetadataStrategy) Name() string { return StrategyMetadata }

func (s MetadataStrategy) Match(ctx context.Context, p *Payment, _ Target) ([]*request.Request, error) {
	if id := p.RequestID(); id != "" {
		req, err := s.repo.GetByID(ctx, id)
		if err == nil {
			return []*request.Request{req}, nil
		}
		if !notFound(err) {
			return nil, err
		}
	}
	if p.SessionRef != "" {
		req, err := s.repo.GetBySessionRef(ctx, p.SessionRef)
		if err == nil {
			return []*request.Request{req}, nil
		}
		if !notFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

// FuzzyStrategy matches the payer email against pending card requests created
// within the window around the payment. It can return several candidates.
type FuzzyStrategy struct {
	repo   request.RepositoryAPI
	window time.Duration
}

func (FuzzyStrategy) Name() string { return StrategyFuzzy }

func (s FuzzyStrategy) Match(ctx context.Context, p *Payment, _ Target) ([]*request.Request, error) {
	if p.Identity.Email == "" || p.Created.IsZero() {
		return nil, nil
	}
	found, err := s.repo.FindByEmailBetween(ctx, p.Identity.Email, p.Created.Add(-s.window), p.Created.Add(s.window))
	if err != nil {
		return nil, err
	}
	out := make([]*request.Request, 0, len(found))
	for _, r := range found {
		if !fuzzyCandidate(r) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// fuzzyCandidate keeps only open card requests with no payment attached.
func fuzzyCandidate(r *request.Request) bool {
	return !r.IsCancelled() &&
		r.PaymentStatus == dm.PaymentStatusPending &&
		r.IsGatewayRail() &&
		r.GatewayPaymentRef == ""
}
