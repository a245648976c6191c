package models_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/velopay/cardledger/ledger/models"
)

func TestCardReserve(t *testing.T) {
	card := models.Card{
		CreditLimit:    decimal.RequireFromString("100.00"),
		AvailableLimit: decimal.RequireFromString("100.00"),
	}

	require.NoError(t, card.Reserve(decimal.RequireFromString("60.00")))
	require.True(t, card.AvailableLimit.Equal(decimal.RequireFromString("40.00")))

	// Down to exactly zero is allowed.
	require.NoError(t, card.Reserve(decimal.RequireFromString("40.00")))
	require.True(t, card.AvailableLimit.IsZero())

	// Overdrawing fails and leaves the limit untouched.
	err := card.Reserve(decimal.RequireFromString("0.01"))
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
	require.True(t, card.AvailableLimit.IsZero())
}

func TestTransactionCapture(t *testing.T) {
	transaction := models.Transaction{Status: models.TransactionStatusAuthorized}

	require.NoError(t, transaction.Capture())
	require.Equal(t, models.TransactionStatusCaptured, transaction.Status)

	err := transaction.Capture()
	require.ErrorIs(t, err, models.ErrInvalidState)
	require.Equal(t, models.TransactionStatusCaptured, transaction.Status)
}
