package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/integrity"
	"github.com/frahmantamala/song-requests/internal/integrity"
)

type IssueRepository struct {
	db *gorm.DB
}

func NewIssueRepository(db *gorm.DB) integrity.RepositoryAPI {
	return &IssueRepository{db: db}
}

func (r *IssueRepository) Insert(ctx context.Context, issue *dm.Issue) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "gateway_ref"}},
			DoNothing: true,
		}).
		Create(issue)
	return res.RowsAffected > 0, res.Error
}

func (r *IssueRepository) ListOpen(ctx context.Context, limit int) ([]*dm.Issue, error) {
	var issues []*dm.Issue
	err := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at DESC").
		Limit(limit).
		Find(&issues).Error
	return issues, err
}

func (r *IssueRepository) Resolve(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&dm.Issue{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", at)
	return res.RowsAffected > 0, res.Error
}
