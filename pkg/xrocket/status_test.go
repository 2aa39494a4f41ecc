package xrocket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		name    string
		invoice Invoice
		want    PaymentStatus
	}{
		{
			name:    "active maps to pending",
			invoice: Invoice{Status: "active"},
			want:    StatusPending,
		},
		{
			name:    "paid maps to paid",
			invoice: Invoice{Status: "paid"},
			want:    StatusPaid,
		},
		{
			name:    "activated maps to paid",
			invoice: Invoice{Status: "activated"},
			want:    StatusPaid,
		},
		{
			name:    "activation count marks paid regardless of status",
			invoice: Invoice{Status: "expired", TotalActivations: 1},
			want:    StatusPaid,
		},
		{
			name:    "expired maps to cancelled",
			invoice: Invoice{Status: "expired"},
			want:    StatusCancelled,
		},
		{
			name:    "anything else maps to cancelled",
			invoice: Invoice{Status: "refunded"},
			want:    StatusCancelled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, mapStatus(tt.invoice))
		})
	}
}
