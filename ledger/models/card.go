package models

import "github.com/shopspring/decimal"

// Card is a credit card tracked by the ledger. AvailableLimit is the only
// mutable field; it is written exclusively inside the repository's per-card
// critical section.
type Card struct {
	ID             int64           `json:"card_id"`
	Number         string          `json:"card_number"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	AvailableLimit decimal.Decimal `json:"available_limit"`
}

// Reserve decrements the available limit by amount. It returns
// ErrInsufficientFunds and leaves the card untouched when the amount exceeds
// what is available. Callers must hold exclusive access to the card.
func (c *Card) Reserve(amount decimal.Decimal) error {
	newAvailable := c.AvailableLimit.Sub(amount)
	if newAvailable.IsNegative() {
		return ErrInsufficientFunds
	}

	c.AvailableLimit = newAvailable

	return nil
}

// CardSummary is the read-only composition of a card and its captured total.
type CardSummary struct {
	CardID              int64           `json:"card_id"`
	CardNumber          string          `json:"card_number"`
	CreditLimit         decimal.Decimal `json:"credit_limit"`
	AvailableLimit      decimal.Decimal `json:"available_limit"`
	TotalCapturedAmount decimal.Decimal `json:"total_captured_amount"`
}
