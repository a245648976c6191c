package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusAuthorized TransactionStatus = "AUTHORIZED"
	TransactionStatusCaptured   TransactionStatus = "CAPTURED"
)

// Transaction records one authorize/capture lifecycle against a card. Amount
// and CardID are immutable after creation; Status moves AUTHORIZED → CAPTURED
// exactly once.
type Transaction struct {
	ID        int64             `json:"transaction_id"`
	CardID    int64             `json:"card_id"`
	Amount    decimal.Decimal   `json:"amount"`
	Status    TransactionStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// Capture transitions the transaction to CAPTURED. Only AUTHORIZED
// transactions can be captured; anything else returns ErrInvalidState.
func (t *Transaction) Capture() error {
	if t.Status != TransactionStatusAuthorized {
		return ErrInvalidState
	}

	t.Status = TransactionStatusCaptured

	return nil
}
