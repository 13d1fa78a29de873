// Package export reads broker transaction export files (CSV).
package export

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types found in export files
const (
	TypeTransfer = "TRANSFER"
	TypeIn       = "IN"
	TypeOut      = "OUT"
)

// Header columns of an export file
const (
	HeaderID                  = "Id"
	HeaderDate                = "Date"
	HeaderDestination         = "Destination"
	HeaderDestinationAmount   = "Destination Amount"
	HeaderDestinationCurrency = "Destination Currency"
	HeaderFeeAmount           = "Fee Amount"
	HeaderFeeCurrency         = "Fee Currency"
	HeaderOrigin              = "Origin"
	HeaderOriginAmount        = "Origin Amount"
	HeaderOriginCurrency      = "Origin Currency"
	HeaderStatus              = "Status"
	HeaderType                = "Type"
)

// FileTransaction is one row of an export file
type FileTransaction struct {
	ID                  string
	Date                time.Time
	Destination         string
	DestinationAmount   decimal.Decimal
	DestinationCurrency string
	FeeAmount           *decimal.Decimal
	FeeCurrency         string
	Origin              string
	OriginAmount        decimal.Decimal
	OriginCurrency      string
	Status              string
	Type                string
}
