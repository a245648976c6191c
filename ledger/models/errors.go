package models

import "fmt"

var (
	ErrNotFound          = fmt.Errorf("not found")
	ErrInsufficientFunds = fmt.Errorf("insufficient available limit")
	ErrInvalidState      = fmt.Errorf("only AUTHORIZED transactions can be captured")
	ErrInvalidAmount     = fmt.Errorf("amount must be positive")
	ErrInvalidCardNumber = fmt.Errorf("invalid card number")
)
