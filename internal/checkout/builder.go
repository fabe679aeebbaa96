package checkout

import (
	"net/url"
	"strconv"
	"strings"

	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
	dm "github.com/frahmantamala/song-requests/internal/core/datamodel/request"
	"github.com/frahmantamala/song-requests/internal/request"
)

const (
	MetadataRequestID      = "request_id"
	MetadataEventCode      = "event_code"
	MetadataIsFastTrack    = "is_fast_track"
	MetadataIsNext         = "is_next"
	MetadataOrganizationID = "organization_id"
	MetadataPaymentCode    = "payment_code"
)

const (
	LineItemNext      = "Next"
	LineItemFastTrack = "Fast-Track"
)

// sessionPlaceholder is substituted by the gateway with the real session id.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

type URLs struct {
	// APIBaseURL is where the gateway sends the guest back after paying.
	APIBaseURL       string
	PublicBaseURL    string
	GeneralEventCode string
}

type Builder struct {
	currency string
	urls     URLs
}

func NewBuilder(currency string, urls URLs) *Builder {
	if urls.GeneralEventCode == "" {
		urls.GeneralEventCode = "general"
	}
	urls.APIBaseURL = strings.TrimRight(urls.APIBaseURL, "/")
	urls.PublicBaseURL = strings.TrimRight(urls.PublicBaseURL, "/")
	return &Builder{currency: strings.ToLower(currency), urls: urls}
}

// LineItems splits the total into the base amount and at most one priority
// line. Next supersedes fast-track.
func (b *Builder) LineItems(req *request.Request) []gw.LineItem {
	items := make([]gw.LineItem, 0, 2)

	base := req.Total() - req.Fees()
	if base > 0 {
		items = append(items, gw.LineItem{Name: baseItemName(req), Amount: base, Quantity: 1})
	}

	switch {
	case req.IsNext() && req.PriorityFeeNext > 0:
		items = append(items, gw.LineItem{Name: LineItemNext, Amount: req.PriorityFeeNext, Quantity: 1})
	case req.IsFastTrack() && req.PriorityFeeFastTrack > 0:
		items = append(items, gw.LineItem{Name: LineItemFastTrack, Amount: req.PriorityFeeFastTrack, Quantity: 1})
	}
	return items
}

func baseItemName(req *request.Request) string {
	switch req.Kind {
	case dm.KindSongRequest:
		if req.SongTitle != "" {
			return "Song request: " + req.SongTitle
		}
		return "Song request"
	case dm.KindShoutout:
		return "Shoutout"
	default:
		return "Tip"
	}
}

func (b *Builder) Metadata(req *request.Request) map[string]string {
	md := map[string]string{
		MetadataRequestID:   req.ID,
		MetadataEventCode:   req.EventCode,
		MetadataIsFastTrack: strconv.FormatBool(req.IsFastTrack()),
		MetadataIsNext:      strconv.FormatBool(req.IsNext()),
		MetadataPaymentCode: req.PaymentCode,
	}
	if req.OrganizationID != "" {
		md[MetadataOrganizationID] = req.OrganizationID
	}
	return md
}

func (b *Builder) SuccessURL() string {
	return b.urls.APIBaseURL + "/api/v1/checkout/success?session_id=" + sessionPlaceholder
}

// CancelURL sends the guest back to the event page, or the generic request
// page for the synthetic general event.
func (b *Builder) CancelURL(eventCode string) string {
	code := strings.TrimSpace(eventCode)
	if code == "" || strings.EqualFold(code, b.urls.GeneralEventCode) {
		return b.urls.PublicBaseURL + "/requests"
	}
	return b.urls.PublicBaseURL + "/events/" + url.PathEscape(code)
}

func (b *Builder) Build(req *request.Request) *gw.CheckoutSessionParams {
	return &gw.CheckoutSessionParams{
		Currency:      b.currency,
		CustomerEmail: req.RequesterEmail,
		SuccessURL:    b.SuccessURL(),
		CancelURL:     b.CancelURL(req.EventCode),
		LineItems:     b.LineItems(req),
		Metadata:      b.Metadata(req),
	}
}
