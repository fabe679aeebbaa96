package paymentgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/frahmantamala/song-requests/internal"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
)

type Config struct {
	BaseURL        string
	SecretKey      string
	Timeout        time.Duration
	MaxReadRetries int
	RetryBaseDelay time.Duration
}

// Client talks to a Stripe-compatible REST API. Reads retry with exponential
// backoff; writes are sent once.
type Client struct {
	baseURL    string
	secretKey  string
	timeout    time.Duration
	maxRetries uint64
	baseDelay  time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseDelay := config.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	retries := config.MaxReadRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		secretKey:  config.SecretKey,
		timeout:    timeout,
		maxRetries: uint64(retries),
		baseDelay:  baseDelay,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params *gw.CheckoutSessionParams) (*gw.CheckoutSession, error) {
	if err := params.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeNotCheckoutable)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	for i, li := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", params.Currency)
		form.Set(prefix+"[price_data][product_data][name]", li.Name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(li.Amount, 10))
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		form.Set(prefix+"[quantity]", strconv.FormatInt(qty, 10))
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
		form.Set("payment_intent_data[metadata]["+k+"]", v)
	}

	var session gw.CheckoutSession
	if err := c.send(ctx, http.MethodPost, "/v1/checkout/sessions", form, "", &session); err != nil {
		return nil, err
	}

	c.logger.Info("checkout session created",
		"session_id", session.ID,
		"request_id", params.Metadata["request_id"],
		"amount_total", session.AmountTotal)
	return &session, nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*gw.CheckoutSession, error) {
	var session gw.CheckoutSession
	if err := c.read(ctx, "/v1/checkout/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*gw.PaymentIntent, error) {
	var intent gw.PaymentIntent
	if err := c.read(ctx, "/v1/payment_intents/"+url.PathEscape(id), nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) GetCharge(ctx context.Context, id string) (*gw.Charge, error) {
	var charge gw.Charge
	if err := c.read(ctx, "/v1/charges/"+url.PathEscape(id), nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*gw.Customer, error) {
	var customer gw.Customer
	if err := c.read(ctx, "/v1/customers/"+url.PathEscape(id), nil, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// ListPaymentIntents returns one page of intents created at or after since.
func (c *Client) ListPaymentIntents(ctx context.Context, since time.Time, limit int, startingAfter string) (*gw.PaymentIntentList, error) {
	q := url.Values{}
	q.Set("created[gte]", strconv.FormatInt(since.Unix(), 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if startingAfter != "" {
		q.Set("starting_after", startingAfter)
	}

	var list gw.PaymentIntentList
	if err := c.read(ctx, "/v1/payment_intents", q, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// SearchPaymentIntentsByRequestID finds intents whose metadata names the request.
func (c *Client) SearchPaymentIntentsByRequestID(ctx context.Context, requestID string) ([]gw.PaymentIntent, error) {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("metadata['request_id']:'%s'", strings.ReplaceAll(requestID, "'", "")))

	var list gw.PaymentIntentList
	if err := c.read(ctx, "/v1/payment_intents/search", q, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// CreateRefund is never retried here; the idempotency key makes a caller-level
// retry safe.
func (c *Client) CreateRefund(ctx context.Context, params *gw.RefundParams) (*gw.Refund, error) {
	if (params.PaymentIntent == "") == (params.Charge == "") {
		return nil, internal.NewValidationError("exactly one of payment intent or charge is required for a gateway refund", internal.ErrCodeNotRefundable)
	}
	if params.Amount <= 0 {
		return nil, internal.NewValidationError("refund amount must be positive", internal.ErrCodeInvalidAmount)
	}

	form := url.Values{}
	if params.Charge != "" {
		form.Set("charge", params.Charge)
	} else {
		form.Set("payment_intent", params.PaymentIntent)
	}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("reason", "requested_by_customer")
	if params.Reason != "" {
		form.Set("metadata[reason]", params.Reason)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var refund gw.Refund
	if err := c.send(ctx, http.MethodPost, "/v1/refunds", form, params.IdempotencyKey, &refund); err != nil {
		return nil, err
	}

	c.logger.Info("gateway refund created",
		"refund_id", refund.ID,
		"payment_intent", params.PaymentIntent,
		"charge", params.Charge,
		"amount", refund.Amount,
		"status", refund.Status)
	return &refund, nil
}

func (c *Client) read(ctx context.Context, path string, query url.Values, out interface{}) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseDelay))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		full := path
		if len(query) > 0 {
			full = path + "?" + query.Encode()
		}
		err := c.send(ctx, http.MethodGet, full, nil, "", out)
		if err != nil && isRetryable(err) {
			c.logger.Warn("gateway read failed, retrying", "path", path, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) send(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return internal.NewGatewayError("failed to build gateway request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return internal.NewGatewayTimeoutError("payment gateway timed out", err)
		}
		return internal.NewGatewayError("payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return internal.NewGatewayTimeoutError("payment gateway timed out", err)
		}
		return internal.NewGatewayError("failed to read gateway response", err)
	}

	if resp.StatusCode >= 300 {
		return c.statusError(resp.StatusCode, respBody, path)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return internal.NewGatewayError("failed to decode gateway response", err)
	}
	return nil
}

func (c *Client) statusError(status int, body []byte, path string) error {
	var apiErr gw.APIError
	_ = json.Unmarshal(body, &apiErr)
	message := apiErr.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}

	c.logger.Warn("gateway returned error", "path", path, "status", status, "gateway_code", apiErr.Error.Code, "message", message)

	if status == http.StatusNotFound {
		return internal.NewNotFoundError("payment object not found at gateway", internal.ErrCodePaymentNotFound)
	}
	return &internal.AppError{
		Type:       internal.ErrorTypeExternal,
		Code:       internal.ErrCodeGatewayError,
		Message:    "payment gateway rejected the request",
		Details:    map[string]interface{}{"gateway_status": status, "gateway_code": apiErr.Error.Code},
		StatusCode: http.StatusInternalServerError,
		Cause:      fmt.Errorf("gateway status %d: %s", status, message),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isRetryable covers timeouts, transport failures and 429/5xx answers.
func isRetryable(err error) bool {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		return false
	}
	if appErr.Code == internal.ErrCodeGatewayTimeout {
		return true
	}
	if appErr.Code != internal.ErrCodeGatewayError {
		return false
	}
	details, ok := appErr.Details.(map[string]interface{})
	if !ok {
		// transport-level failure, no status received
		return appErr.Cause != nil
	}
	status, _ := details["gateway_status"].(int)
	return status == http.StatusTooManyRequests || status >= 500
}
