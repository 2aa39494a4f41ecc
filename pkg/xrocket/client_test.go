package xrocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixedRateConverter divides by a fixed rate, like rates.Converter with a
// pinned exchange rate.
type fixedRateConverter struct {
	rate decimal.Decimal
}

func (f fixedRateConverter) Convert(_ context.Context, fiatAmount decimal.Decimal) decimal.Decimal {
	return fiatAmount.DivRound(f.rate, 9)
}

func newTestClient(gatewayURL string) *Client {
	conv := fixedRateConverter{rate: decimal.NewFromInt(350)}
	return NewClient(zap.NewNop(), conv, gatewayURL, "test-key", "https://shop.example.com")
}

func validRequest() CreateRequest {
	return CreateRequest{
		OrderID:        "order_1700000000000_42",
		FiatAmount:     decimal.NewFromInt(1000),
		Description:    "Payment for order order_1700000000000_42",
		CustomerHandle: "good_user1",
		RedirectURL:    "/payment/success?orderId=order_1700000000000_42",
	}
}

func TestCreateInvoice(t *testing.T) {
	var gotBody InvoiceRequest
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/tg-invoices", r.URL.Path)
		gotKey = r.Header.Get("Rocket-Pay-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"success":true,"data":{"id":12345,"link":"https://t.me/xrocket?start=inv_abc","status":"active"}}`)
	}))
	defer server.Close()

	result := newTestClient(server.URL).CreateInvoice(context.Background(), validRequest())

	require.True(t, result.Success)
	require.Equal(t, "https://t.me/xrocket?start=inv_abc", result.PaymentURL)
	require.Equal(t, "12345", result.InvoiceID)
	require.Empty(t, result.Error)

	require.Equal(t, "test-key", gotKey)
	require.Equal(t, "2.857142857", gotBody.Amount.String())
	require.Equal(t, "2.857142857", gotBody.MinPayment.String())
	require.Equal(t, 1, gotBody.NumPayments)
	require.Equal(t, "TONCOIN", gotBody.Currency)
	require.Equal(t, "Payment for order order_1700000000000_42 (1000 RUB)", gotBody.Description)
	require.Equal(t, "order order_1700000000000_42 | good_user1", gotBody.HiddenMessage)
	require.False(t, gotBody.CommentsEnabled)
	require.Equal(t, "https://shop.example.com/payment/success?orderId=order_1700000000000_42", gotBody.CallbackURL)
	require.Equal(t, "order_1700000000000_42", gotBody.Payload)
	require.Equal(t, 30, gotBody.ExpiredIn)
}

func TestCreateInvoiceRetriesTransientFailures(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out retry backoff")
	}
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		// Drop the connection without a response: a transient failure.
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer server.Close()

	result := newTestClient(server.URL).CreateInvoice(context.Background(), validRequest())

	require.False(t, result.Success)
	require.Equal(t, "network error, check connection", result.Error)
	require.Equal(t, int64(3), attempts.Load())
}

func TestCreateInvoiceUnauthorizedIsNotRetried(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"success":false,"message":"invalid api key"}`)
	}))
	defer server.Close()

	result := newTestClient(server.URL).CreateInvoice(context.Background(), validRequest())

	require.False(t, result.Success)
	require.Equal(t, "authorization error, invalid key", result.Error)
	require.Equal(t, int64(1), attempts.Load())
}

func TestCreateInvoiceEmptyLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"id":12345,"link":"  ","status":"active"}}`)
	}))
	defer server.Close()

	result := newTestClient(server.URL).CreateInvoice(context.Background(), validRequest())

	require.False(t, result.Success)
	require.Equal(t, "empty payment URL", result.Error)
}

func TestCreateInvoiceGatewayRefusal(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"message":"amount too small"}`)
	}))
	defer server.Close()

	result := newTestClient(server.URL).CreateInvoice(context.Background(), validRequest())

	require.False(t, result.Success)
	require.Equal(t, "amount too small", result.Error)
	require.Equal(t, int64(1), attempts.Load())
}

func TestCreateInvoiceMissingHandle(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
	}))
	defer server.Close()

	req := validRequest()
	req.CustomerHandle = ""
	result := newTestClient(server.URL).CreateInvoice(context.Background(), req)

	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
	require.Equal(t, int64(0), attempts.Load(), "an invalid request must not reach the network")
}

func TestQueryStatusNumericKeyUsesDirectLookup(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		fmt.Fprint(w, `{"success":true,"data":{"id":12345,"status":"paid","payload":"order_1_1"}}`)
	}))
	defer server.Close()

	result := newTestClient(server.URL).QueryStatus(context.Background(), "12345")

	require.Equal(t, "/api/tg-invoices/12345", gotPath)
	require.True(t, result.Success)
	require.Equal(t, StatusPaid, result.Status)
}

func TestQueryStatusPayloadKeyFiltersListing(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"success":true,"data":[
			{"id":1,"status":"expired","payload":"order_1_1"},
			{"id":2,"status":"active","payload":"order_2_2"}
		]}`)
	}))
	defer server.Close()

	result := newTestClient(server.URL).QueryStatus(context.Background(), "order_2_2")

	require.Equal(t, "/api/tg-invoices", gotPath)
	require.True(t, result.Success)
	require.Equal(t, StatusPending, result.Status)
}

func TestQueryStatusUnknownWhenAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))
	defer server.Close()

	result := newTestClient(server.URL).QueryStatus(context.Background(), "order_9_9")

	require.False(t, result.Success)
	require.Equal(t, StatusUnknown, result.Status)
}

func TestQueryStatusNotFoundInvoiceID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"message":"not found"}`)
	}))
	defer server.Close()

	result := newTestClient(server.URL).QueryStatus(context.Background(), "777")

	require.False(t, result.Success)
	require.Equal(t, StatusUnknown, result.Status)
}

func TestIsNumeric(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"12345", true},
		{"0", true},
		{"", false},
		{"order_1700000000000_42", false},
		{"12a45", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, isNumeric(tt.key), tt.key)
	}
}
