package xrocket

// PaymentStatus is the local tri-state an invoice status maps to.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusPaid      PaymentStatus = "PAID"
	StatusCancelled PaymentStatus = "CANCELLED"
	StatusUnknown   PaymentStatus = "unknown"
	StatusError     PaymentStatus = "error"
)

// mapStatus folds a gateway invoice into the local tri-state. PAID requires
// the gateway to explicitly report a completed payment; expired and anything
// unrecognized count as cancelled.
func mapStatus(inv Invoice) PaymentStatus {
	switch {
	case inv.Status == "active":
		return StatusPending
	case inv.Status == "paid" || inv.Status == "activated" || inv.TotalActivations > 0:
		return StatusPaid
	default:
		return StatusCancelled
	}
}
