// Package proxy is the same-origin HTTP surface of the storefront backend.
// It forwards invoice requests to the xRocket gateway with the secret key
// attached server-side (the browser never holds it) and exposes the payment
// orchestration endpoints the Mini App UI drives.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MRCriper/tg-bot123/pkg/payment"
	"github.com/MRCriper/tg-bot123/pkg/sentry"
	"github.com/MRCriper/tg-bot123/pkg/xrocket"
)

const (
	createKeyHeader  = "Rocket-Pay-Key"
	queryKeyHeader   = "X-API-KEY"
	signatureHeader  = "rocket-pay-signature"
	upstreamTimeout  = 30 * time.Second
	maxWebhookLength = 1 << 20
)

// paymentService is implemented by payment.Orchestrator.
type paymentService interface {
	Initiate(ctx context.Context, cart payment.Cart, handle string) (payment.State, error)
	CheckStatus(ctx context.Context) xrocket.StatusResult
	CheckStatusFor(ctx context.Context, key string) xrocket.StatusResult
	State() payment.State
	Reset()
}

// signatureVerifier is implemented by xrocket.Client.
type signatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

type Handler struct {
	logger   *zap.Logger
	client   *http.Client
	gateway  string
	apiKey   string
	payments paymentService
	verifier signatureVerifier
}

func NewHandler(logger *zap.Logger, gatewayBaseURL, apiKey string, payments paymentService, verifier signatureVerifier) *Handler {
	gateway := strings.TrimSuffix(gatewayBaseURL, "/")
	if !strings.HasSuffix(gateway, "/api") {
		gateway += "/api"
	}
	return &Handler{
		logger:   logger,
		client:   &http.Client{Timeout: upstreamTimeout},
		gateway:  gateway,
		apiKey:   apiKey,
		payments: payments,
		verifier: verifier,
	}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/api/tg-invoices", h.createInvoice)
	r.Get("/api/tg-invoices", h.listInvoices)
	r.Get("/api/tg-invoices/{id}", h.getInvoice)
	r.Post("/api/webhook", h.webhook)
	r.Post("/api/payments", h.initiatePayment)
	r.Get("/api/payments/status", h.paymentStatus)
	r.Delete("/api/payments", h.resetPayment)
	r.Get("/healthz", h.health)
	return r
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.MethodPost, h.gateway+"/tg-invoices", createKeyHeader)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.MethodGet, h.gateway+"/tg-invoices", queryKeyHeader)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.forward(w, r, http.MethodGet, h.gateway+"/tg-invoices/"+id, queryKeyHeader)
}

// forward replays the request against the gateway with the secret key
// attached and passes the gateway's status and body through unchanged.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, method, url, keyHeader string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Message: "failed to read request body"})
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), method, url, bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{Message: "failed to build gateway request"})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(keyHeader, h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Error("gateway request failed", zap.String("url", url), zap.Error(err))
		sentry.Send("payment gateway unreachable", sentry.InfoData{"url": url, "error": err.Error()}, sentrygo.LevelError)
		requestsCounter.WithLabelValues(r.URL.Path, "unreachable").Inc()
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{
			Message: "failed to reach payment gateway",
			Error:   err.Error(),
		})
		return
	}
	defer resp.Body.Close()
	requestsCounter.WithLabelValues(r.URL.Path, strconv.Itoa(resp.StatusCode)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("failed to relay gateway response", zap.Error(err))
	}
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookLength))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Message: "failed to read webhook body"})
		return
	}
	if !h.verifier.VerifySignature(body, r.Header.Get(signatureHeader)) {
		writeJSON(w, http.StatusForbidden, errorEnvelope{Message: "invalid signature"})
		return
	}
	var event xrocket.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Message: "malformed webhook body"})
		return
	}
	h.logger.Info("payment webhook received",
		zap.String("payload", event.Payload),
		zap.String("status", event.Status),
		zap.String("amount", event.Amount.String()))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type initiateRequest struct {
	Cart     payment.Cart `json:"cart"`
	Username string       `json:"username"`
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Message: "malformed request body"})
		return
	}
	state, err := h.payments.Initiate(r.Context(), req.Cart, req.Username)
	switch {
	case errors.Is(err, payment.ErrPaymentInFlight):
		writeJSON(w, http.StatusConflict, state)
	case errors.Is(err, payment.ErrInvalidHandle):
		writeJSON(w, http.StatusBadRequest, state)
	default:
		writeJSON(w, http.StatusOK, state)
	}
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	var result xrocket.StatusResult
	if key := r.URL.Query().Get("orderId"); key != "" {
		result = h.payments.CheckStatusFor(r.Context(), key)
	} else {
		result = h.payments.CheckStatus(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": result.Success,
		"status":  result.Status,
	})
}

func (h *Handler) resetPayment(w http.ResponseWriter, _ *http.Request) {
	h.payments.Reset()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
