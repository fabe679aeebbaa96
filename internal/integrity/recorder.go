package integrity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/integrity"
	"github.com/frahmantamala/song-requests/internal/core/events"
)

type RepositoryAPI interface {
	// Insert stores the issue unless one with the same kind and gateway ref
	// already exists; created reports which happened.
	Insert(ctx context.Context, issue *dm.Issue) (created bool, err error)
	ListOpen(ctx context.Context, limit int) ([]*dm.Issue, error)
	Resolve(ctx context.Context, id string, at time.Time) (bool, error)
}

// Recorder queues discrepancies for operator review. Recording never fails
// the caller's primary operation; errors are returned for logging only.
type Recorder struct {
	repo      RepositoryAPI
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewRecorder(repo RepositoryAPI, publisher events.Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, kind, gatewayRef, requestID string, details map[string]interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte("{}")
	}

	issue := &dm.Issue{
		ID:         uuid.NewString(),
		Kind:       kind,
		GatewayRef: gatewayRef,
		Details:    datatypes.JSON(raw),
		CreatedAt:  r.now().UTC(),
	}
	if requestID != "" {
		issue.RequestID = &requestID
	}

	level := slog.LevelWarn
	if kind == dm.KindRefundRecordFailed {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "integrity issue detected",
		"kind", kind,
		"gateway_ref", gatewayRef,
		"request_id", requestID,
		"details", string(raw))

	created, err := r.repo.Insert(ctx, issue)
	if err != nil {
		r.logger.Error("failed to record integrity issue", "kind", kind, "gateway_ref", gatewayRef, "error", err)
		return err
	}
	if !created {
		r.logger.Debug("integrity issue already recorded", "kind", kind, "gateway_ref", gatewayRef)
		return nil
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, events.NewIntegrityIssueEvent(kind, gatewayRef, requestID)); err != nil {
			r.logger.Warn("failed to publish integrity issue", "kind", kind, "error", err)
		}
	}
	return nil
}

func (r *Recorder) ListOpen(ctx context.Context, limit int) ([]*dm.Issue, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.repo.ListOpen(ctx, limit)
}

func (r *Recorder) Resolve(ctx context.Context, id string) (bool, error) {
	return r.repo.Resolve(ctx, id, r.now().UTC())
}
