package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/partsledger/internal/units"
)

// lockRecorder records the order in which balances are locked.
type lockRecorder struct {
	TxRepository
	mu    *sync.Mutex
	order *[]BalanceKey
}

func (r lockRecorder) LockOrInitBalance(ctx context.Context, tenantID int64, key BalanceKey) (decimal.Decimal, error) {
	r.mu.Lock()
	*r.order = append(*r.order, key)
	r.mu.Unlock()
	return r.TxRepository.LockOrInitBalance(ctx, tenantID, key)
}

type recordingRepo struct {
	*memoryRepo
	mu    sync.Mutex
	order []BalanceKey
}

func (r *recordingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.memoryRepo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return fn(ctx, lockRecorder{TxRepository: tx, mu: &r.mu, order: &r.order})
	})
}

func (r *recordingRepo) locks() []BalanceKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BalanceKey(nil), r.order...)
}

func TestLedgerLocksInKeyOrder(t *testing.T) {
	repo := &recordingRepo{memoryRepo: newMemoryRepo()}
	south := BalanceKey{LocationID: garageSouth, PartID: partFilter}
	north := BalanceKey{LocationID: garageNorth, PartID: partOil}
	northFilter := BalanceKey{LocationID: garageNorth, PartID: partFilter}

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		l := newLedgerTx(tx, testTenant)
		handles, err := l.lock(ctx, south, north, northFilter, south)
		require.NoError(t, err)
		require.Len(t, handles, 4)
		require.Equal(t, south, handles[0].Key())
		require.Equal(t, north, handles[1].Key())
		require.Equal(t, northFilter, handles[2].Key())
		require.Same(t, handles[0], handles[3])

		again, err := l.lock(ctx, north)
		require.NoError(t, err)
		require.Same(t, handles[1], again[0])
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []BalanceKey{northFilter, north, south}, repo.locks())
}

func TestTransferLocksLowerLocationFirst(t *testing.T) {
	f := newFixture(t)
	repo := &recordingRepo{memoryRepo: f.repo}
	svc := NewService(repo, f.audit, f.tokens, units.NewPolicy(stubCatalog{"PCS": false, "LTR": true}),
		ServiceConfig{Now: func() time.Time { return fixedNow }, Metrics: f.metrics}, f.notifier)
	src := BalanceKey{LocationID: garageSouth, PartID: partFilter}
	dst := BalanceKey{LocationID: garageNorth, PartID: partFilter}
	f.repo.seed(testTenant, src, "6")

	result, err := svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageSouth, ToLocationID: garageNorth,
		PartID: partFilter, Quantity: qty("2"),
	})
	require.NoError(t, err)
	require.Equal(t, []BalanceKey{dst, src}, repo.locks())

	requireQty(t, "4", f.repo.balance(testTenant, src))
	requireQty(t, "2", f.repo.balance(testTenant, dst))
	require.Equal(t, garageSouth, result.Out.LocationID)
	require.Equal(t, garageNorth, result.In.LocationID)
}
