package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/request"
)

type queueRow struct {
	ID             string         `db:"id"`
	OrganizationID sql.NullString `db:"organization_id"`
	Kind           string         `db:"kind"`
	SongTitle      string         `db:"song_title"`
	SongArtist     string         `db:"song_artist"`
	SongURL        string         `db:"song_url"`
	Message        string         `db:"message"`
	RecipientName  string         `db:"recipient_name"`
	RequesterName  string         `db:"requester_name"`
	PriorityOrder  int            `db:"priority_order"`
	PaymentStatus  string         `db:"payment_status"`
	AmountPaid     int64          `db:"amount_paid"`
	CreatedAt      time.Time      `db:"created_at"`
}

// QueueRepository reads the DJ queue with plain SQL; the view is hot and only
// needs a handful of columns.
type QueueRepository struct {
	db *sqlx.DB
}

func NewQueueRepository(db *sqlx.DB) request.QueueReader {
	return &QueueRepository{db: db}
}

func (q *QueueRepository) ListSettledQueue(ctx context.Context, orgID string) ([]*request.Request, error) {
	query := q.db.Rebind(`
		SELECT id, organization_id, kind, song_title, song_artist, song_url, message,
			recipient_name, requester_name, priority_order, payment_status, amount_paid, created_at
		FROM requests
		WHERE organization_id = ?
			AND status = ?
			AND payment_status IN (?, ?)
		ORDER BY priority_order ASC, created_at ASC, id ASC`)

	var rows []queueRow
	err := q.db.SelectContext(ctx, &rows, query,
		orgID, dm.StatusNew, dm.PaymentStatusPaid, dm.PaymentStatusPartiallyRefunded)
	if err != nil {
		return nil, err
	}

	out := make([]*request.Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, &request.Request{
			ID:             row.ID,
			OrganizationID: row.OrganizationID.String,
			Kind:           row.Kind,
			SongTitle:      row.SongTitle,
			SongArtist:     row.SongArtist,
			SongURL:        row.SongURL,
			Message:        row.Message,
			RecipientName:  row.RecipientName,
			RequesterName:  row.RequesterName,
			PriorityOrder:  row.PriorityOrder,
			PaymentStatus:  row.PaymentStatus,
			AmountPaid:     row.AmountPaid,
			Status:         dm.StatusNew,
			CreatedAt:      row.CreatedAt,
		})
	}
	return out, nil
}
