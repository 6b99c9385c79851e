package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// QuantityScale is the number of decimal places stored for quantities.
const QuantityScale = 4

// MovementKind enumerates supported ledger movements.
type MovementKind string

const (
	// MovementIn represents an inbound movement; quantity is a magnitude.
	MovementIn MovementKind = "IN"
	// MovementOut represents an outbound movement; quantity is a magnitude.
	MovementOut MovementKind = "OUT"
	// MovementAdjust indicates manual adjustments; quantity carries its sign.
	MovementAdjust MovementKind = "ADJUST"
)

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementIn, MovementOut, MovementAdjust:
		return true
	}
	return false
}

// ReferenceKind tags the business event that caused a movement.
type ReferenceKind string

const (
	RefPurchase       ReferenceKind = "PURCHASE"
	RefAdjustment     ReferenceKind = "ADJUSTMENT"
	RefTransfer       ReferenceKind = "TRANSFER"
	RefOpening        ReferenceKind = "OPENING"
	RefCustomerReturn ReferenceKind = "CUSTOMER_RETURN"
	RefVendorReturn   ReferenceKind = "VENDOR_RETURN"
)

// BalanceKey identifies one (location, part) balance row within a tenant.
type BalanceKey struct {
	LocationID int64
	PartID     int64
}

func (k BalanceKey) less(o BalanceKey) bool {
	if k.LocationID != o.LocationID {
		return k.LocationID < o.LocationID
	}
	return k.PartID < o.PartID
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%d:%d", k.LocationID, k.PartID)
}

// Balance is the owned on-hand quantity of a part at a location.
type Balance struct {
	TenantID   int64
	LocationID int64
	PartID     int64
	Qty        decimal.Decimal
	UpdatedAt  time.Time
}

// Key returns the balance key.
func (b Balance) Key() BalanceKey {
	return BalanceKey{LocationID: b.LocationID, PartID: b.PartID}
}

// Movement is an immutable ledger entry.
type Movement struct {
	ID             int64
	TenantID       int64
	LocationID     int64
	PartID         int64
	Kind           MovementKind
	Qty            decimal.Decimal
	RefKind        ReferenceKind
	RefID          int64
	IdempotencyKey string
	Notes          string
	ActorID        int64
	PostedAt       time.Time
}

// Effect is the signed change the movement applies to its balance.
func (m Movement) Effect() decimal.Decimal {
	switch m.Kind {
	case MovementOut:
		return m.Qty.Abs().Neg()
	case MovementIn:
		return m.Qty.Abs()
	default:
		return m.Qty
	}
}

// TransferStatus is the lifecycle state of a transfer record.
type TransferStatus string

// TransferPosted marks a committed transfer.
const TransferPosted TransferStatus = "POSTED"

// Transfer records one inter-location relocation, always paired with an OUT and an IN movement.
type Transfer struct {
	ID             int64
	TenantID       int64
	FromLocationID int64
	ToLocationID   int64
	PartID         int64
	Qty            decimal.Decimal
	Reference      string
	Fingerprint    string
	Status         TransferStatus
	Notes          string
	ActorID        int64
	CreatedAt      time.Time
}

// TempStockStatus is the state of a trial-fit stock entry.
type TempStockStatus string

const (
	TempStockOpen      TempStockStatus = "OPEN"
	TempStockReturned  TempStockStatus = "RETURNED"
	TempStockPurchased TempStockStatus = "PURCHASED"
	TempStockConsumed  TempStockStatus = "CONSUMED"
)

// IsResolution reports whether s is a valid target when leaving OPEN.
func (s TempStockStatus) IsResolution() bool {
	switch s {
	case TempStockReturned, TempStockPurchased, TempStockConsumed:
		return true
	}
	return false
}

// TempStockEventType enumerates the temp-stock audit trail.
type TempStockEventType string

const (
	EventTempIn         TempStockEventType = "TEMP_IN"
	EventReturned       TempStockEventType = "RETURNED"
	EventPurchased      TempStockEventType = "PURCHASED"
	EventConsumed       TempStockEventType = "CONSUMED"
	EventPurchaseLinked TempStockEventType = "PURCHASE_LINKED"
)

var resolutionEvents = map[TempStockStatus]TempStockEventType{
	TempStockReturned:  EventReturned,
	TempStockPurchased: EventPurchased,
	TempStockConsumed:  EventConsumed,
}

// TempStockEntry is stock held on trial, excluded from owned balances until resolved.
type TempStockEntry struct {
	ID               int64
	TenantID         int64
	LocationID       int64
	PartID           int64
	Reference        string
	Qty              decimal.Decimal
	Status           TempStockStatus
	Notes            string
	ResolvedBy       int64
	ResolvedAt       time.Time
	ResolutionNotes  string
	LinkedPurchaseID int64
	CreatedBy        int64
	CreatedAt        time.Time
}

// TempStockEvent is one immutable transition of a TempStockEntry.
type TempStockEvent struct {
	ID               int64
	EntryID          int64
	Type             TempStockEventType
	Qty              decimal.Decimal
	FromStatus       TempStockStatus
	ToStatus         TempStockStatus
	LinkedPurchaseID int64
	ActorID          int64
	At               time.Time
}

// Part is the catalog view the ledger needs: unit for decimal policy, cost and tax for purchases.
type Part struct {
	ID       int64
	TenantID int64
	SKU      string
	Name     string
	UnitCode string
	UnitCost decimal.Decimal
	// TaxRate is a percentage.
	TaxRate decimal.Decimal
}

// Label names the part in user-facing messages.
func (p Part) Label() string {
	if p.SKU != "" {
		return p.SKU
	}
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("#%d", p.ID)
}

// AdjustmentInput describes a manual stock adjustment.
type AdjustmentInput struct {
	Token      string
	LocationID int64
	PartID     int64
	Operation  MovementKind
	// Quantity is unsigned for IN/OUT and signed for ADJUST.
	Quantity      decimal.Decimal
	AllowNegative bool
	Notes         string
}

// AdjustmentResult is returned by a committed adjustment.
type AdjustmentResult struct {
	Movement   Movement
	Balance    decimal.Decimal
	PurchaseID int64
}

// TransferInput describes a transfer between two locations.
type TransferInput struct {
	Token               string
	FromLocationID      int64
	ToLocationID        int64
	PartID              int64
	Quantity            decimal.Decimal
	AllowNegativeSource bool
	Notes               string
}

// TransferResult is returned by a committed transfer.
type TransferResult struct {
	Transfer      Transfer
	SourceBalance decimal.Decimal
	TargetBalance decimal.Decimal
	Out           Movement
	In            Movement
}

// TempStockInput opens a trial-fit entry.
type TempStockInput struct {
	Token      string
	LocationID int64
	PartID     int64
	Quantity   decimal.Decimal
	Notes      string
}

// ResolveTempStockInput moves an OPEN entry to a terminal status.
type ResolveTempStockInput struct {
	Token           string
	EntryID         int64
	Resolution      TempStockStatus
	Notes           string
	ConfirmConsumed bool
}

// LinkPurchaseInput attaches a paper-trail purchase to a CONSUMED entry.
type LinkPurchaseInput struct {
	Token   string
	EntryID int64
}

// TempStockResult is returned by every temp-stock transition.
type TempStockResult struct {
	Entry      TempStockEntry
	Event      TempStockEvent
	PurchaseID int64
	// Movement and Balance are set only when the transition touched the ledger.
	Movement *Movement
	Balance  *decimal.Decimal
}

// MovementFilter filters ledger listings.
type MovementFilter struct {
	TenantID   int64
	LocationID int64
	// LocationIDs restricts results to a location set when LocationID is zero.
	LocationIDs []int64
	PartID      int64
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// TempStockFilter filters temp-stock listings.
type TempStockFilter struct {
	TenantID    int64
	LocationID  int64
	LocationIDs []int64
	Status      TempStockStatus
	Limit       int
}

// BalanceCursor pages through every balance row across tenants.
type BalanceCursor struct {
	TenantID   int64
	LocationID int64
	PartID     int64
}

// Drift reports a balance that does not reconcile with its movements.
type Drift struct {
	TenantID    int64
	Key         BalanceKey
	Balance     decimal.Decimal
	LedgerTotal decimal.Decimal
}

// Difference is balance minus ledger total.
func (d Drift) Difference() decimal.Decimal {
	return d.Balance.Sub(d.LedgerTotal)
}

// Action names scope single-use tokens.
const (
	ActionAdjustment  = "inventory_adjustment"
	ActionTransfer    = "inventory_transfer"
	ActionTempStockIn = "temp_stock_in"
)

// ResolveTempStockAction scopes the token guarding a resolve of entryID.
func ResolveTempStockAction(entryID int64) string {
	return fmt.Sprintf("resolve_temp_stock_%d", entryID)
}

// LinkTempStockAction scopes the token guarding a purchase link of entryID.
func LinkTempStockAction(entryID int64) string {
	return fmt.Sprintf("link_temp_stock_%d", entryID)
}
