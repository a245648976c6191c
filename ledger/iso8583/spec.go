package iso8583

import (
	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/padding"
	"github.com/moov-io/iso8583/prefix"
)

// Message types handled by the server.
const (
	mtiAuthorizationRequest  = "0100"
	mtiAuthorizationResponse = "0110"
	mtiCaptureAdvice         = "0220"
	mtiCaptureResponse       = "0230"
)

// Response codes (DE39).
const (
	responseApproved          = "00"
	responseInvalidCard       = "14"
	responseUnableToLocate    = "25"
	responseInsufficientFunds = "51"
	responseInvalidState      = "94"
	responseSystemError       = "96"
)

// Spec is the subset of ISO 8583 (ASCII) the card ledger speaks: PAN and
// amount on authorization requests, retrieval reference number on capture
// advices, response code on everything outbound.
var Spec = &iso8583.MessageSpec{
	Name: "CardLedger ISO 8583 ASCII",
	Fields: map[int]field.Field{
		0: field.NewString(&field.Spec{
			Length:      4,
			Description: "Message Type Indicator",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		1: field.NewBitmap(&field.Spec{
			Description: "Bitmap",
			Enc:         encoding.BytesToASCIIHex,
			Pref:        prefix.Hex.Fixed,
		}),
		2: field.NewString(&field.Spec{
			Length:      19,
			Description: "Primary Account Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		4: field.NewNumeric(&field.Spec{
			Length:      12,
			Description: "Amount, Transaction",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left('0'),
		}),
		11: field.NewNumeric(&field.Spec{
			Length:      6,
			Description: "Systems Trace Audit Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left('0'),
		}),
		37: field.NewString(&field.Spec{
			Length:      12,
			Description: "Retrieval Reference Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left(' '),
		}),
		39: field.NewString(&field.Spec{
			Length:      2,
			Description: "Response Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
	},
}
