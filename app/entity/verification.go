package entity

import "github.com/shopspring/decimal"

const (
	VerificationStatusUnknown = "unknown"
	VerificationStatusMock    = "Mock Payment Completed"
)

// VerificationResult is what Verify reports for a reference. Status is the normalised
// outcome (or the mock literal); Description carries the provider's own wording.
type VerificationResult struct {
	Reference   string
	Success     bool
	Amount      decimal.Decimal
	Currency    string
	Status      string
	Description string
	Outcome     PaymentStatus
	Mock        bool
	Error       string
}

// FormattedAmount renders "USD 10.00", or just "10.00" when the currency is not known.
func (r *VerificationResult) FormattedAmount() string {
	if r == nil {
		return ""
	}
	if r.Currency == "" {
		if r.Amount.IsZero() {
			return ""
		}
		return r.Amount.StringFixed(2)
	}
	return r.Currency + " " + r.Amount.StringFixed(2)
}
