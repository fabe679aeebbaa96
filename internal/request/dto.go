package request

import (
	errors "github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/core/common/validation"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
)

const (
	PriorityStandard  = "standard"
	PriorityFastTrack = "fast_track"
	PriorityNext      = "next"
)

// maxAmount caps a single submission at 10,000.00 in minor units.
const maxAmount = 1_000_000

type CreateRequestDTO struct {
	OrganizationID  string `json:"organization_id"`
	EventCode       string `json:"event_code"`
	Kind            string `json:"kind"`
	Priority        string `json:"priority"`
	AmountRequested int64  `json:"amount_requested"`
	PaymentRail     string `json:"payment_rail"`
	PaymentCode     string `json:"payment_code"`
	SongTitle       string `json:"song_title"`
	SongArtist      string `json:"song_artist"`
	SongURL         string `json:"song_url"`
	Message         string `json:"message"`
	RecipientName   string `json:"recipient_name"`
	RequesterName   string `json:"requester_name"`
	RequesterEmail  string `json:"requester_email"`
	RequesterPhone  string `json:"requester_phone"`
}

func (d *CreateRequestDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("kind", d.Kind).Required().OneOf(errors.ErrCodeInvalidKind, dm.KindSongRequest, dm.KindShoutout, dm.KindTip)
	v.Field("priority", d.Priority).OneOf(errors.ErrCodeValidationFailed, PriorityStandard, PriorityFastTrack, PriorityNext)
	v.Field("payment_rail", d.PaymentRail).OneOf(errors.ErrCodeInvalidRail, dm.RailGatewayCard, dm.RailCashApp, dm.RailVenmo, dm.RailCash, dm.RailOther)
	v.Field("amount_requested", d.AmountRequested).MinInt(0, errors.ErrCodeInvalidAmount).MaxInt(maxAmount, errors.ErrCodeInvalidAmount)
	v.Field("requester_email", d.RequesterEmail).Email().MaxLength(254)
	v.Field("requester_name", d.RequesterName).MaxLength(120)
	v.Field("song_title", d.SongTitle).MaxLength(300)
	v.Field("song_artist", d.SongArtist).MaxLength(300)
	v.Field("song_url", d.SongURL).MaxLength(2048)
	v.Field("message", d.Message).MaxLength(1000)
	v.Field("priority", d.Priority).Custom(func(interface{}) *errors.AppError {
		if d.Priority == PriorityNext && d.Kind != dm.KindSongRequest {
			return errors.NewValidationFieldError("priority", "next priority is only available for song requests", errors.ErrCodeValidationFailed)
		}
		if d.Kind == dm.KindTip && d.Priority != "" && d.Priority != PriorityStandard {
			return errors.NewValidationFieldError("priority", "tips cannot carry a priority", errors.ErrCodeValidationFailed)
		}
		return nil
	})
	if d.Kind == dm.KindSongRequest {
		v.Field("song_title", d.SongTitle).Custom(func(interface{}) *errors.AppError {
			if d.SongTitle == "" && d.SongURL == "" {
				return errors.NewValidationFieldError("song_title", "song_title or song_url is required", errors.ErrCodeValidationFailed)
			}
			return nil
		})
	}

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type CreateRequestResponse struct {
	Request      *Request `json:"request"`
	Total        int64    `json:"total"`
	TotalDisplay string   `json:"total_display"`
}

type PaymentStatusView struct {
	RequestID     string `json:"request_id"`
	Paid          bool   `json:"paid"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

type PayByCodeView struct {
	PaymentCode  string     `json:"payment_code"`
	Requests     []*Request `json:"requests"`
	TotalDue     int64      `json:"total_due"`
	TotalDisplay string     `json:"total_display"`
	Paid         bool       `json:"paid"`
}

type ConfirmManualDTO struct {
	PaymentCode string `json:"payment_code"`
	PaymentRail string `json:"payment_rail"`
}

func (d *ConfirmManualDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("payment_code", d.PaymentCode).Required().MaxLength(32)
	v.Field("payment_rail", d.PaymentRail).Required().OneOf(errors.ErrCodeInvalidRail, dm.RailCashApp, dm.RailVenmo, dm.RailCash, dm.RailOther)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type ConfirmManualResponse struct {
	PaymentCode string `json:"payment_code"`
	Confirmed   int64  `json:"confirmed"`
}

type AssignOrganizationDTO struct {
	OrganizationID string `json:"organization_id"`
}

type DeleteRequestsDTO struct {
	RequestIDs []string `json:"request_ids"`
}

func (d *DeleteRequestsDTO) Validate() error {
	if len(d.RequestIDs) == 0 {
		return errors.NewValidationFieldError("request_ids", "request_ids must not be empty", errors.ErrCodeValidationFailed)
	}
	if len(d.RequestIDs) > 500 {
		return errors.NewValidationFieldError("request_ids", "at most 500 requests per call", errors.ErrCodeValidationFailed)
	}
	return nil
}

type QueueResponse struct {
	OrganizationID string       `json:"organization_id"`
	Entries        []QueueEntry `json:"entries"`
}
