package payments

import "errors"

var ErrInvalidCheckout = errors.New("invalid checkout request")

// Checkout requests are one explicit type per kind rather than a loose
// parameter bag: each variant enumerates its required fields and owns its
// price/limit derivation.

// FixedPlanCheckout buys a pre-configured recurring plan by Stripe price id.
type FixedPlanCheckout struct {
	PriceID    string `json:"priceId"`
	PlanID     string `json:"planId"`
	UserID     string `json:"userId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

func (r FixedPlanCheckout) Validate() error {
	if r.PriceID == "" || r.UserID == "" || r.SuccessURL == "" || r.CancelURL == "" {
		return ErrInvalidCheckout
	}
	return nil
}

// CustomPlanCheckout buys a dynamically priced premium subscription; the
// purchased prompt count becomes the premium pool limit when the webhook
// lands.
type CustomPlanCheckout struct {
	Amount      int64  `json:"amount"` // major currency units
	Currency    string `json:"currency"`
	PromptCount int    `json:"promptCount"`
	Interval    string `json:"interval"` // month | year
	UserID      string `json:"userId"`
	ProductName string `json:"productName"`
	SuccessURL  string `json:"successUrl"`
	CancelURL   string `json:"cancelUrl"`
}

func (r CustomPlanCheckout) Validate() error {
	if r.Amount <= 0 || r.Currency == "" || r.PromptCount <= 0 || r.UserID == "" {
		return ErrInvalidCheckout
	}
	if r.Interval != "month" && r.Interval != "year" {
		return ErrInvalidCheckout
	}
	if r.SuccessURL == "" || r.CancelURL == "" {
		return ErrInvalidCheckout
	}
	return nil
}

// BonusCheckout is a one-time top-up purchase. The prompt count is added to
// the bonus pool limit, never replacing it.
type BonusCheckout struct {
	AmountCents int64  `json:"amount"` // already in minor units
	Currency    string `json:"currency"`
	PromptCount int    `json:"promptCount"`
	UserID      string `json:"userId"`
	ProductName string `json:"productName"`
	SuccessURL  string `json:"successUrl"`
	CancelURL   string `json:"cancelUrl"`
}

func (r BonusCheckout) Validate() error {
	if r.AmountCents <= 0 || r.PromptCount <= 0 || r.UserID == "" {
		return ErrInvalidCheckout
	}
	if r.SuccessURL == "" || r.CancelURL == "" {
		return ErrInvalidCheckout
	}
	return nil
}
