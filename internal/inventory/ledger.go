package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/partsledger/internal/purchasing"
)

// TxRepository exposes transactional storage used by the ledger. Workflow code
// never calls the balance/movement primitives directly; it goes through
// ledgerTx so that a balance write always travels with its movement.
type TxRepository interface {
	// LockOrInitBalance upserts a zero row if absent, then reads it under FOR UPDATE.
	LockOrInitBalance(ctx context.Context, tenantID int64, key BalanceKey) (decimal.Decimal, error)
	WriteBalance(ctx context.Context, tenantID int64, key BalanceKey, qty decimal.Decimal) error
	// InsertMovement returns ErrDuplicateMovement when the idempotency key exists.
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	// MovementTotal sums the signed effect of every movement for key.
	MovementTotal(ctx context.Context, tenantID int64, key BalanceKey) (decimal.Decimal, error)

	GetPart(ctx context.Context, tenantID, partID int64) (Part, error)
	ActiveLocations(ctx context.Context, tenantID int64, ids ...int64) (map[int64]bool, error)
	OpenPurchase(ctx context.Context, input purchasing.UnassignedInput) (purchasing.Purchase, error)

	// InsertTransfer returns errReferenceTaken on reference collision and
	// ErrDuplicateMovement on fingerprint collision.
	InsertTransfer(ctx context.Context, t Transfer) (int64, error)

	// InsertTempStock returns errReferenceTaken on reference collision.
	InsertTempStock(ctx context.Context, e TempStockEntry) (int64, error)
	GetTempStockForUpdate(ctx context.Context, tenantID, id int64) (TempStockEntry, error)
	UpdateTempStock(ctx context.Context, e TempStockEntry) error
	InsertTempStockEvent(ctx context.Context, evt TempStockEvent) (int64, error)
}

// LockedBalance is the capability to change one balance. It can only be
// obtained from ledgerTx.lock, which guarantees the row is locked for the
// remainder of the transaction.
type LockedBalance struct {
	key   BalanceKey
	qty   decimal.Decimal
	owner *ledgerTx
}

// Key returns the locked pair.
func (b *LockedBalance) Key() BalanceKey { return b.key }

// Quantity returns the balance as of the lock, including movements applied since.
func (b *LockedBalance) Quantity() decimal.Decimal { return b.qty }

// ledgerTx wraps a TxRepository for one tenant-scoped unit of work.
type ledgerTx struct {
	repo     TxRepository
	tenantID int64
	locked   map[BalanceKey]*LockedBalance
}

func newLedgerTx(repo TxRepository, tenantID int64) *ledgerTx {
	return &ledgerTx{repo: repo, tenantID: tenantID, locked: make(map[BalanceKey]*LockedBalance)}
}

// lock acquires every requested balance in (location, part) order regardless of
// argument order, so opposite-direction transfers cannot deadlock. Handles are
// returned in argument order.
func (l *ledgerTx) lock(ctx context.Context, keys ...BalanceKey) ([]*LockedBalance, error) {
	ordered := make([]BalanceKey, 0, len(keys))
	seen := make(map[BalanceKey]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].less(ordered[j]) })
	for _, k := range ordered {
		if _, ok := l.locked[k]; ok {
			continue
		}
		qty, err := l.repo.LockOrInitBalance(ctx, l.tenantID, k)
		if err != nil {
			return nil, fmt.Errorf("lock balance %s: %w", k, err)
		}
		l.locked[k] = &LockedBalance{key: k, qty: qty, owner: l}
	}
	handles := make([]*LockedBalance, len(keys))
	for i, k := range keys {
		handles[i] = l.locked[k]
	}
	return handles, nil
}

// applyMovement writes the new balance and appends m together.
func (l *ledgerTx) applyMovement(ctx context.Context, b *LockedBalance, m Movement) (Movement, error) {
	if b == nil || b.owner != l {
		return Movement{}, errors.New("inventory: balance not locked in this transaction")
	}
	if !m.Kind.Valid() {
		return Movement{}, fmt.Errorf("inventory: unknown movement kind %q", m.Kind)
	}
	if m.IdempotencyKey == "" {
		return Movement{}, errors.New("inventory: movement idempotency key required")
	}
	m.TenantID = l.tenantID
	m.LocationID = b.key.LocationID
	m.PartID = b.key.PartID
	next := b.qty.Add(m.Effect())
	if err := l.repo.WriteBalance(ctx, l.tenantID, b.key, next); err != nil {
		return Movement{}, fmt.Errorf("write balance %s: %w", b.key, err)
	}
	id, err := l.repo.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	m.ID = id
	b.qty = next
	return m, nil
}
