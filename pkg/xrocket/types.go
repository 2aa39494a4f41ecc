package xrocket

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type (
	// InvoiceRequest is the body of a tg-invoice creation call,
	// mirroring the gateway API field for field.
	InvoiceRequest struct {
		Amount          decimal.Decimal `json:"amount"`
		MinPayment      decimal.Decimal `json:"minPayment"`
		NumPayments     int             `json:"numPayments"`
		Currency        string          `json:"currency"`
		Description     string          `json:"description"`
		HiddenMessage   string          `json:"hiddenMessage"`
		CommentsEnabled bool            `json:"commentsEnabled"`
		CallbackURL     string          `json:"callbackUrl"`
		Payload         string          `json:"payload"`
		ExpiredIn       int             `json:"expiredIn"`
	}

	// Invoice is the gateway-side entity; it is never mutated locally and is
	// fetched fresh on every status query. Payload carries the order id the
	// invoice was created with.
	Invoice struct {
		ID               json.Number `json:"id"`
		Status           string      `json:"status"`
		Payload          string      `json:"payload"`
		Link             string      `json:"link"`
		TotalActivations int         `json:"totalActivations"`
	}

	invoiceResponse struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		Data    Invoice `json:"data"`
	}

	invoiceListResponse struct {
		Success bool      `json:"success"`
		Message string    `json:"message"`
		Data    []Invoice `json:"data"`
	}

	// WebhookEvent is the body the gateway posts to the callback endpoint
	// once an invoice changes state.
	WebhookEvent struct {
		Payload string          `json:"payload"`
		Status  string          `json:"status"`
		Amount  decimal.Decimal `json:"amount"`
	}
)

// CreateRequest describes a checkout session to be turned into a gateway
// invoice.
type CreateRequest struct {
	OrderID     string
	FiatAmount  decimal.Decimal
	Description string
	// CustomerHandle is the normalized telegram username. The caller
	// validates it; an empty handle never reaches the network.
	CustomerHandle string
	RedirectURL    string
}

// CreateResult is the outcome of an invoice creation. Failures are values,
// not errors: Error carries a message fit for user display.
type CreateResult struct {
	Success    bool
	PaymentURL string
	InvoiceID  string
	Error      string
}

// StatusResult is the outcome of a status query.
type StatusResult struct {
	Success bool
	Status  PaymentStatus
}
