package purchasing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the purchase document lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
)

// PaymentStatus tracks settlement of a purchase.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// Source tags the business event that opened a purchase.
type Source string

const (
	// SourceStockIn marks purchases opened by an inbound stock adjustment.
	SourceStockIn Source = "STOCK_ADJUSTMENT_IN"
	// SourceTempStock marks purchases converted from trial-fit stock.
	SourceTempStock Source = "TEMP_STOCK_PURCHASE"
	// SourceTempStockConsumed marks paper-trail purchases linked after consumption.
	SourceTempStockConsumed Source = "TEMP_STOCK_CONSUMED"
)

// Purchase is an unassigned purchase header: no vendor or invoice yet.
type Purchase struct {
	ID            int64
	TenantID      int64
	LocationID    int64
	Number        string
	VendorID      int64
	InvoiceNumber string
	Status        Status
	PaymentStatus PaymentStatus
	Source        Source
	Notes         string
	Taxable       decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	CreatedBy     int64
	CreatedAt     time.Time
}

// Line is the single part line carried by an unassigned purchase.
type Line struct {
	ID         int64
	PurchaseID int64
	PartID     int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	TaxRate    decimal.Decimal
	Taxable    decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
}

// UnassignedInput describes a purchase to open for received stock.
type UnassignedInput struct {
	TenantID   int64
	LocationID int64
	PartID     int64
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	// TaxRate is a percentage, e.g. 18 for 18%.
	TaxRate decimal.Decimal
	Source  Source
	Notes   string
	ActorID int64
}

// ErrValidation indicates invalid purchase input.
var ErrValidation = errors.New("purchasing: invalid input")

// ErrNumberExhausted indicates every candidate purchase number collided.
var ErrNumberExhausted = errors.New("purchasing: purchase number attempts exhausted")
