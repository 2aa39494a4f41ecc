package xrocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	createKeyHeader = "Rocket-Pay-Key"
	queryKeyHeader  = "X-API-KEY"

	createTimeout = 30 * time.Second
	statusTimeout = 10 * time.Second

	maxAttempts = 3

	// invoiceTTL is how long a created invoice stays payable, in minutes.
	invoiceTTL = 30

	settlementCurrency = "TONCOIN"
)

// User-facing error messages; the orchestrator forwards them unchanged.
const (
	errNetwork   = "network error, check connection"
	errAuth      = "authorization error, invalid key"
	errEmptyLink = "empty payment URL"
)

// converter is the part of rates.Converter the client needs.
type converter interface {
	Convert(ctx context.Context, fiatAmount decimal.Decimal) decimal.Decimal
}

// Client talks to the xRocket payment gateway. It retains no state between
// calls; every failure is folded into a result value at this boundary.
type Client struct {
	logger    *zap.Logger
	client    *http.Client
	endpoint  string
	apiKey    string
	appOrigin string
	converter converter
}

func NewClient(logger *zap.Logger, conv converter, baseURL, apiKey, appOrigin string) *Client {
	endpoint := strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(endpoint, "/api") {
		endpoint += "/api"
	}
	return &Client{
		logger:    logger,
		client:    &http.Client{},
		endpoint:  endpoint,
		apiKey:    apiKey,
		appOrigin: strings.TrimSuffix(appOrigin, "/"),
		converter: conv,
	}
}

// apiError is an error the gateway itself reported: an HTTP status outside
// 2xx or a malformed success body. Never retried.
type apiError struct {
	code    int
	message string
}

func (e *apiError) Error() string {
	if e.code != 0 {
		return fmt.Sprintf("gateway error %d: %s", e.code, e.message)
	}
	return e.message
}

// CreateInvoice converts the fiat amount to TON and asks the gateway for an
// invoice. Transient failures are retried up to maxAttempts times with
// exponential backoff; classified gateway errors abort immediately.
func (c *Client) CreateInvoice(ctx context.Context, req CreateRequest) CreateResult {
	if req.CustomerHandle == "" {
		return CreateResult{Error: "missing telegram username"}
	}
	amount := c.converter.Convert(ctx, req.FiatAmount)
	body := InvoiceRequest{
		Amount:      amount,
		MinPayment:  amount,
		NumPayments: 1,
		Currency:    settlementCurrency,
		// The original fiat amount goes into the description so a human can
		// audit the conversion later.
		Description:     fmt.Sprintf("%s (%s RUB)", req.Description, req.FiatAmount.String()),
		HiddenMessage:   fmt.Sprintf("order %s | %s", req.OrderID, req.CustomerHandle),
		CommentsEnabled: false,
		CallbackURL:     c.absoluteURL(req.RedirectURL),
		Payload:         req.OrderID,
		ExpiredIn:       invoiceTTL,
	}

	var invoice Invoice
	err := retry.Do(func() error {
		inv, err := c.postInvoice(ctx, body)
		if err != nil {
			return err
		}
		invoice = inv
		return nil
	}, retry.Attempts(maxAttempts), retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay), retry.RetryIf(isTransient),
		retry.LastErrorOnly(true))
	if err != nil {
		c.logger.Error("failed to create invoice",
			zap.String("order_id", req.OrderID), zap.Error(err))
		requestsCounter.WithLabelValues("create", "failure").Inc()
		return CreateResult{Error: classify(err)}
	}
	if strings.TrimSpace(invoice.Link) == "" {
		requestsCounter.WithLabelValues("create", "failure").Inc()
		return CreateResult{Error: errEmptyLink}
	}
	requestsCounter.WithLabelValues("create", "success").Inc()
	return CreateResult{
		Success:    true,
		PaymentURL: invoice.Link,
		InvoiceID:  invoice.ID.String(),
	}
}

// QueryStatus resolves the payment state behind key, which is either a
// gateway invoice id (purely numeric, looked up directly) or the
// client-generated order id used as the invoice payload (found by filtering
// the invoice listing). Same retry policy as creation.
func (c *Client) QueryStatus(ctx context.Context, key string) StatusResult {
	var status PaymentStatus
	err := retry.Do(func() error {
		s, err := c.fetchStatus(ctx, key)
		if err != nil {
			return err
		}
		status = s
		return nil
	}, retry.Attempts(maxAttempts), retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay), retry.RetryIf(isTransient),
		retry.LastErrorOnly(true))
	if err != nil {
		c.logger.Error("failed to query invoice status",
			zap.String("key", key), zap.Error(err))
		requestsCounter.WithLabelValues("status", "failure").Inc()
		return StatusResult{Status: StatusError}
	}
	requestsCounter.WithLabelValues("status", "success").Inc()
	if status == StatusUnknown {
		return StatusResult{Status: StatusUnknown}
	}
	return StatusResult{Success: true, Status: status}
}

func (c *Client) fetchStatus(ctx context.Context, key string) (PaymentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if isNumeric(key) {
		inv, found, err := c.getInvoice(ctx, key)
		if err != nil {
			return StatusError, err
		}
		if !found {
			return StatusUnknown, nil
		}
		return mapStatus(inv), nil
	}
	invoices, err := c.listInvoices(ctx)
	if err != nil {
		return StatusError, err
	}
	for _, inv := range invoices {
		if inv.Payload == key {
			return mapStatus(inv), nil
		}
	}
	return StatusUnknown, nil
}

func (c *Client) postInvoice(ctx context.Context, body InvoiceRequest) (Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, createTimeout)
	defer cancel()
	buf, err := json.Marshal(body)
	if err != nil {
		return Invoice{}, &apiError{message: errors.Wrap(err, "encode invoice request").Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/tg-invoices", bytes.NewReader(buf))
	if err != nil {
		return Invoice{}, &apiError{message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(createKeyHeader, c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		// No HTTP response at all: transient by definition.
		return Invoice{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Invoice{}, &apiError{code: resp.StatusCode, message: readErrorMessage(resp.Body)}
	}
	var decoded invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Invoice{}, &apiError{message: "malformed gateway response"}
	}
	if !decoded.Success {
		return Invoice{}, &apiError{message: decoded.Message}
	}
	return decoded.Data, nil
}

func (c *Client) getInvoice(ctx context.Context, id string) (Invoice, bool, error) {
	resp, err := c.sendQuery(ctx, c.endpoint+"/tg-invoices/"+id)
	if err != nil {
		return Invoice{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Invoice{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Invoice{}, false, &apiError{code: resp.StatusCode, message: readErrorMessage(resp.Body)}
	}
	var decoded invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Invoice{}, false, &apiError{message: "malformed gateway response"}
	}
	if !decoded.Success {
		return Invoice{}, false, nil
	}
	return decoded.Data, true, nil
}

func (c *Client) listInvoices(ctx context.Context) ([]Invoice, error) {
	resp, err := c.sendQuery(ctx, c.endpoint+"/tg-invoices")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{code: resp.StatusCode, message: readErrorMessage(resp.Body)}
	}
	var decoded invoiceListResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &apiError{message: "malformed gateway response"}
	}
	if !decoded.Success {
		return nil, &apiError{message: decoded.Message}
	}
	return decoded.Data, nil
}

func (c *Client) sendQuery(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &apiError{message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(queryKeyHeader, c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// absoluteURL rewrites a relative redirect URL against the application
// origin; the gateway rejects relative callback URLs.
func (c *Client) absoluteURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if strings.HasPrefix(raw, "/") {
		return c.appOrigin + raw
	}
	return c.appOrigin + "/" + raw
}

// isTransient reports whether err is worth retrying. Only failures without a
// gateway response qualify: timeouts, resets, aborted connections. Anything
// the gateway answered is final.
func isTransient(err error) bool {
	var gwErr *apiError
	return !errors.As(err, &gwErr)
}

func classify(err error) string {
	var gwErr *apiError
	if errors.As(err, &gwErr) {
		if gwErr.code == http.StatusUnauthorized {
			return errAuth
		}
		return gwErr.message
	}
	return errNetwork
}

func readErrorMessage(r io.Reader) string {
	var decoded struct {
		Message string `json:"message"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Message != "" {
		return decoded.Message
	}
	return strings.TrimSpace(string(raw))
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
