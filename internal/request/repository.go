package request

import (
	"context"
	"time"
)

// Identity is payer contact data reported by the gateway or the guest.
type Identity struct {
	Name  string
	Email string
	Phone string
}

// PaymentLink is the write applied when a gateway payment is attached to a request.
type PaymentLink struct {
	PaymentRef     string
	PaymentStatus  string
	AmountPaid     int64
	PaidAt         *time.Time
	OrganizationID string
	// PaymentRail, when set, replaces the stored rail.
	PaymentRail    string
}

type RefundUpdate struct {
	Amount        int64
	Reason        string
	PaymentStatus string
	Status        string
	RefundedAt    time.Time
}

type RepositoryAPI interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	GetByPaymentRef(ctx context.Context, ref string) (*Request, error)
	GetBySessionRef(ctx context.Context, ref string) (*Request, error)
	ListByPaymentCode(ctx context.Context, code string) ([]*Request, error)
	PaymentCodeExists(ctx context.Context, code string) (bool, error)
	PendingCodeExists(ctx context.Context, orgID, code string) (bool, error)
	FindByEmailBetween(ctx context.Context, email string, from, to time.Time) ([]*Request, error)
	ListOrphanCandidates(ctx context.Context, since time.Time, limit int) ([]*Request, error)

	// LinkPayment only succeeds while the row holds no payment ref or the same one;
	// false means another writer got there first.
	LinkPayment(ctx context.Context, id string, link PaymentLink) (bool, error)
	MergeIdentity(ctx context.Context, id string, identity Identity) error
	// SetSessionRef writes the checkout session ref once.
	SetSessionRef(ctx context.Context, id, ref string) (bool, error)
	// ApplyRefund only succeeds while the row is paid.
	ApplyRefund(ctx context.Context, id string, update RefundUpdate) (bool, error)
	ConfirmManualPayment(ctx context.Context, code, rail string, paidAt time.Time) (int64, error)
	BackfillOrganization(ctx context.Context, id, orgID string) (bool, error)
	AssignOrganization(ctx context.Context, id, orgID string) (bool, error)
	DeleteForOrganization(ctx context.Context, orgID string, ids []string) (int64, error)
}

// QueueReader is the read side used by the DJ queue view.
type QueueReader interface {
	ListSettledQueue(ctx context.Context, orgID string) ([]*Request, error)
}
