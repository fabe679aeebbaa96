package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/organization"
	"github.com/frahmantamala/song-requests/internal/tenant"
)

type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) tenant.RepositoryAPI {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*organization.Organization, error) {
	var org organization.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	var org organization.Organization
	if err := r.db.WithContext(ctx).Where("slug = ?", strings.ToLower(slug)).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepository) Create(ctx context.Context, org *organization.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.Slug = strings.ToLower(org.Slug)
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *OrganizationRepository) List(ctx context.Context) ([]*organization.Organization, error) {
	var orgs []*organization.Organization
	err := r.db.WithContext(ctx).Order("slug ASC").Find(&orgs).Error
	return orgs, err
}
