package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MRCriper/tg-bot123/pkg/redirect"
	"github.com/MRCriper/tg-bot123/pkg/xrocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrPaymentInFlight is returned when Initiate is called while a
	// previous initiation has not finished yet.
	ErrPaymentInFlight = errors.New("payment: initiation already in flight")
	// ErrInvalidHandle is returned for a telegram username that fails the
	// format check; the request never reaches the network.
	ErrInvalidHandle = errors.New("payment: invalid telegram username")
)

// Cart is the part of the checkout the payment core needs.
type Cart struct {
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// State is a snapshot of the current payment cycle. Either PaymentURL or
// Err ends up set; Reset clears everything.
type State struct {
	OrderID    string `json:"orderId"`
	InvoiceID  string `json:"invoiceId,omitempty"`
	PaymentURL string `json:"paymentUrl,omitempty"`
	Err        string `json:"error,omitempty"`
	IsLoading  bool   `json:"isLoading"`
}

// invoiceClient is implemented by xrocket.Client.
type invoiceClient interface {
	CreateInvoice(ctx context.Context, req xrocket.CreateRequest) xrocket.CreateResult
	QueryStatus(ctx context.Context, key string) xrocket.StatusResult
}

// Orchestrator owns the payment state of one checkout session and drives the
// rate conversion and invoice creation behind it. All state transitions are
// sequenced behind a mutex; at most one initiation runs at a time.
type Orchestrator struct {
	logger *zap.Logger
	client invoiceClient
	origin string

	mu       sync.Mutex
	inFlight bool
	state    State
}

func NewOrchestrator(logger *zap.Logger, client invoiceClient, appOrigin string) *Orchestrator {
	return &Orchestrator{
		logger: logger,
		client: client,
		origin: strings.TrimSuffix(appOrigin, "/"),
	}
}

// Initiate runs one payment cycle: validate the handle, generate an order
// id, create a gateway invoice and remember its link. Re-entrant calls get
// ErrPaymentInFlight together with the state of the cycle already running.
func (o *Orchestrator) Initiate(ctx context.Context, cart Cart, rawHandle string) (State, error) {
	o.mu.Lock()
	if o.inFlight {
		st := o.state
		o.mu.Unlock()
		return st, ErrPaymentInFlight
	}
	handle, err := NormalizeHandle(rawHandle)
	if err != nil {
		o.state = State{Err: "invalid telegram username"}
		st := o.state
		o.mu.Unlock()
		return st, err
	}
	orderID := newOrderID()
	o.inFlight = true
	o.state = State{OrderID: orderID, IsLoading: true}
	o.mu.Unlock()

	result := o.client.CreateInvoice(ctx, xrocket.CreateRequest{
		OrderID:        orderID,
		FiatAmount:     cart.TotalPrice,
		Description:    fmt.Sprintf("Payment for order %s", orderID),
		CustomerHandle: handle,
		RedirectURL:    o.redirectURL(orderID),
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight = false
	if o.state.OrderID != orderID {
		// Reset raced with the network call; the response is stale, drop it.
		o.logger.Debug("discarding stale invoice result", zap.String("order_id", orderID))
		return o.state, nil
	}
	if result.Success {
		o.state = State{
			OrderID:   orderID,
			InvoiceID: result.InvoiceID,
			// The gateway occasionally hands out schemeless links.
			PaymentURL: redirect.Normalize(result.PaymentURL),
		}
	} else {
		// The order id is discarded so a retry starts clean.
		o.state = State{Err: result.Error}
		o.logger.Warn("payment initiation failed",
			zap.String("order_id", orderID), zap.String("error", result.Error))
	}
	return o.state, nil
}

// CheckStatus queries the gateway for the tracked cycle. The invoice id is
// preferred over the order id: the gateway listing keys more reliably by
// invoice id once an invoice leaves the active state.
func (o *Orchestrator) CheckStatus(ctx context.Context) xrocket.StatusResult {
	key := o.correlationKey()
	if key == "" {
		return xrocket.StatusResult{Status: xrocket.StatusUnknown}
	}
	return o.client.QueryStatus(ctx, key)
}

// CheckStatusFor queries an explicit correlation key, e.g. an order id read
// back from the redirect query string on page load.
func (o *Orchestrator) CheckStatusFor(ctx context.Context, key string) xrocket.StatusResult {
	return o.client.QueryStatus(ctx, key)
}

// State returns a copy of the current payment state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reset clears the payment state. Callable at any time, idempotent.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = State{}
}

func (o *Orchestrator) correlationKey() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.InvoiceID != "" {
		return o.state.InvoiceID
	}
	return o.state.OrderID
}

func (o *Orchestrator) redirectURL(orderID string) string {
	return fmt.Sprintf("%s/payment/success?orderId=%s", o.origin, url.QueryEscape(orderID))
}

// newOrderID is unique enough for a single session, not globally.
func newOrderID() string {
	return fmt.Sprintf("order_%d_%d", time.Now().UnixMilli(), rand.Intn(1000))
}

// OrderIDFromRedirect extracts the orderId query parameter the gateway
// carries back to the application after payment.
func OrderIDFromRedirect(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	id := u.Query().Get("orderId")
	if id == "" {
		return "", errors.New("payment: redirect url carries no order id")
	}
	return id, nil
}
