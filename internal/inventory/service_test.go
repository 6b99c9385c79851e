package inventory

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/partsledger/internal/purchasing"
	"github.com/odyssey-erp/partsledger/internal/shared"
)

func TestAdjustmentInboundOpensPurchase(t *testing.T) {
	f := newFixture(t)
	key := BalanceKey{LocationID: garageNorth, PartID: partFilter}
	f.repo.seed(testTenant, key, "10")

	_, err := f.svc.PostAdjustment(f.ctx, AdjustmentInput{
		Token: f.token(t, ActionAdjustment), LocationID: garageNorth, PartID: partFilter,
		Operation: MovementIn, Quantity: qty("3.5"),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, verr.UserMessage(), "FLT-01")
	require.Contains(t, verr.UserMessage(), "PCS")
	requireQty(t, "10", f.repo.balance(testTenant, key))
	require.Empty(t, f.repo.movementsFor(key))

	result, err := f.svc.PostAdjustment(f.ctx, AdjustmentInput{
		Token: f.token(t, ActionAdjustment), LocationID: garageNorth, PartID: partFilter,
		Operation: MovementIn, Quantity: qty("3"), Notes: "Counted delivery",
	})
	require.NoError(t, err)
	requireQty(t, "13", result.Balance)
	requireQty(t, "13", f.repo.balance(testTenant, key))

	movements := f.repo.movementsFor(key)
	require.Len(t, movements, 1)
	require.Equal(t, MovementIn, movements[0].Kind)
	requireQty(t, "3", movements[0].Qty)
	require.Equal(t, RefPurchase, movements[0].RefKind)
	require.Equal(t, result.PurchaseID, movements[0].RefID)
	require.True(t, strings.HasPrefix(movements[0].IdempotencyKey, "adjustment-"))

	purchases := f.repo.snapshot().purchases
	require.Len(t, purchases, 1)
	require.Equal(t, result.PurchaseID, purchases[0].ID)
	require.Equal(t, purchasing.SourceStockIn, purchases[0].Source)
	require.Equal(t, purchasing.StatusDraft, purchases[0].Status)
	require.Equal(t, purchasing.PaymentUnpaid, purchases[0].PaymentStatus)
	requireQty(t, "75.30", purchases[0].Taxable)
	requireQty(t, "13.55", purchases[0].Tax)
	requireQty(t, "88.85", purchases[0].Total)

	require.Equal(t, 1, f.metrics.posted["IN"])
	require.Contains(t, f.audit.actions(), WorkflowAdjustment)
	require.Len(t, f.notifier.events, 1)
	requireQty(t, "13", f.notifier.events[0].Qty)
}

func TestAdjustmentOutAndSignedAdjust(t *testing.T) {
	f := newFixture(t)
	key := BalanceKey{LocationID: garageNorth, PartID: partOil}
	f.repo.seed(testTenant, key, "10")

	result, err := f.svc.PostAdjustment(f.ctx, AdjustmentInput{
		Token: f.token(t, ActionAdjustment), LocationID: garageNorth, PartID: partOil,
		Operation: MovementOut, Quantity: qty("4.25"),
	})
	require.NoError(t, err)
	requireQty(t, "5.75", result.Balance)
	require.Equal(t, RefAdjustment, result.Movement.RefKind)
	requireQty(t, "4.25", result.Movement.Qty)
	require.Zero(t, result.PurchaseID)

	result, err = f.svc.PostAdjustment(f.ctx, AdjustmentInput{
		Token: f.token(t, ActionAdjustment), LocationID: garageNorth, PartID: partOil,
		Operation: MovementAdjust, Quantity: qty("-1.75"),
	})
	require.NoError(t, err)
	requireQty(t, "4", result.Balance)
	require.Equal(t, MovementAdjust, result.Movement.Kind)
	requireQty(t, "-1.75", result.Movement.Qty)
	require.Empty(t, f.repo.snapshot().purchases)
}

func TestAdjustmentInputValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		input AdjustmentInput
	}{
		{"missing location", AdjustmentInput{PartID: partFilter, Operation: MovementIn, Quantity: qty("1")}},
		{"missing part", AdjustmentInput{LocationID: garageNorth, Operation: MovementIn, Quantity: qty("1")}},
		{"zero in", AdjustmentInput{LocationID: garageNorth, PartID: partFilter, Operation: MovementIn, Quantity: qty("0")}},
		{"negative out", AdjustmentInput{LocationID: garageNorth, PartID: partFilter, Operation: MovementOut, Quantity: qty("-2")}},
		{"zero adjust", AdjustmentInput{LocationID: garageNorth, PartID: partFilter, Operation: MovementAdjust, Quantity: qty("0")}},
		{"unknown operation", AdjustmentInput{LocationID: garageNorth, PartID: partFilter, Operation: "MOVE", Quantity: qty("1")}},
		{"inactive location", AdjustmentInput{LocationID: garageClosed, PartID: partFilter, Operation: MovementIn, Quantity: qty("1")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.input.Token = f.token(t, ActionAdjustment)
			_, err := f.svc.PostAdjustment(f.ctx, tc.input)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, f.repo.snapshot().movements)
}

func TestAdjustmentNegativeGuard(t *testing.T) {
	f := newFixture(t)
	key := BalanceKey{LocationID: garageNorth, PartID: partFilter}
	f.repo.seed(testTenant, key, "10")

	_, err := f.svc.PostAdjustment(f.ctx, AdjustmentInput{
		Token: f.token(t, ActionAdjustment), LocationID: garageNorth, PartID: partFilter,
		Operation: MovementOut, Quantity: qty("20"),
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	requireQty(t, "10", stockErr.Available)
	require.Equal(t, "Insufficient stock. Available: 10.00", shared.UserSafeMessage(err))
	requireQty(t, "10", f.repo.balance(testTenant, key))
	require.Empty(t, f.repo.movementsFor(key))

	// The flag alone is not enough without the elevated permission.
	_, err = f.svc.PostAdjustment(f.ctx, AdjustmentInput{
		Token: f.token(t, ActionAdjustment), LocationID: garageNorth, PartID: partFilter,
		Operation: MovementOut, Quantity: qty("20"), AllowNegative: true,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	supervisor := f.actor
	supervisor.Permissions = append(supervisor.Permissions, shared.PermNegativeStock)
	ctx := f.as(supervisor)
	token, err := f.tokens.Issue(ctx, supervisor.TokenScope(), ActionAdjustment)
	require.NoError(t, err)
	result, err := f.svc.PostAdjustment(ctx, AdjustmentInput{
		Token: token, LocationID: garageNorth, PartID: partFilter,
		Operation: MovementOut, Quantity: qty("20"), AllowNegative: true,
	})
	require.NoError(t, err)
	requireQty(t, "-10", result.Balance)
}

func TestAdjustmentTokenConsumedOnce(t *testing.T) {
	f := newFixture(t)
	key := BalanceKey{LocationID: garageNorth, PartID: partFilter}
	token := f.token(t, ActionAdjustment)
	input := AdjustmentInput{Token: token, LocationID: garageNorth, PartID: partFilter, Operation: MovementIn, Quantity: qty("2")}

	_, err := f.svc.PostAdjustment(f.ctx, input)
	require.NoError(t, err)
	_, err = f.svc.PostAdjustment(f.ctx, input)
	require.ErrorIs(t, err, shared.ErrDuplicateRequest)

	requireQty(t, "2", f.repo.balance(testTenant, key))
	require.Len(t, f.repo.movementsFor(key), 1)
	require.Equal(t, 1, f.metrics.failures[WorkflowAdjustment+":duplicate"])

	input.Token = ""
	_, err = f.svc.PostAdjustment(f.ctx, input)
	require.ErrorIs(t, err, shared.ErrDuplicateRequest)

	// A token for another action is not accepted.
	input.Token = f.token(t, ActionTransfer)
	_, err = f.svc.PostAdjustment(f.ctx, input)
	require.ErrorIs(t, err, shared.ErrDuplicateRequest)
	require.Len(t, f.repo.movementsFor(key), 1)
}

func TestConcurrentReplayAppliesOnce(t *testing.T) {
	f := newFixture(t)
	key := BalanceKey{LocationID: garageNorth, PartID: partFilter}
	token := f.token(t, ActionAdjustment)

	var applied, duplicates atomic.Int32
	var g errgroup.Group
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			_, err := f.svc.PostAdjustment(f.ctx, AdjustmentInput{
				Token: token, LocationID: garageNorth, PartID: partFilter, Operation: MovementIn, Quantity: qty("5"),
			})
			switch {
			case err == nil:
				applied.Add(1)
			case errors.Is(err, shared.ErrDuplicateRequest):
				duplicates.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), applied.Load())
	require.Equal(t, int32(11), duplicates.Load())
	requireQty(t, "5", f.repo.balance(testTenant, key))
	require.Len(t, f.repo.movementsFor(key), 1)
}

func TestTransferScenario(t *testing.T) {
	f := newFixture(t)
	src := BalanceKey{LocationID: garageNorth, PartID: partFilter}
	dst := BalanceKey{LocationID: garageSouth, PartID: partFilter}
	f.repo.seed(testTenant, src, "20")
	f.repo.seed(testTenant, dst, "5")

	result, err := f.svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageNorth, ToLocationID: garageSouth,
		PartID: partFilter, Quantity: qty("8"), Notes: "Rebalance",
	})
	require.NoError(t, err)
	requireQty(t, "12", result.SourceBalance)
	requireQty(t, "13", result.TargetBalance)
	requireQty(t, "12", f.repo.balance(testTenant, src))
	requireQty(t, "13", f.repo.balance(testTenant, dst))

	require.Equal(t, TransferPosted, result.Transfer.Status)
	require.Equal(t, "TRF-20260314092653-01", result.Transfer.Reference)
	require.NotEmpty(t, result.Transfer.Fingerprint)

	out := f.repo.movementsFor(src)
	in := f.repo.movementsFor(dst)
	require.Len(t, out, 1)
	require.Len(t, in, 1)
	require.Equal(t, MovementOut, out[0].Kind)
	require.Equal(t, MovementIn, in[0].Kind)
	require.Equal(t, result.Transfer.ID, out[0].RefID)
	require.Equal(t, result.Transfer.ID, in[0].RefID)
	require.Equal(t, RefTransfer, out[0].RefKind)
	require.Equal(t, "transfer-"+itoa(result.Transfer.ID)+"-out", out[0].IdempotencyKey)
	require.Equal(t, "transfer-"+itoa(result.Transfer.ID)+"-in", in[0].IdempotencyKey)

	stored, err := f.svc.GetTransfer(f.ctx, result.Transfer.ID)
	require.NoError(t, err)
	require.Equal(t, result.Transfer.Reference, stored.Reference)
	require.Len(t, f.notifier.events, 2)
}

func TestTransferInsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	src := BalanceKey{LocationID: garageNorth, PartID: partFilter}
	dst := BalanceKey{LocationID: garageSouth, PartID: partFilter}
	f.repo.seed(testTenant, src, "5")
	before := f.repo.snapshot()

	_, err := f.svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageNorth, ToLocationID: garageSouth,
		PartID: partFilter, Quantity: qty("8"),
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, "Insufficient stock. Available: 5.00", shared.UserSafeMessage(err))

	after := f.repo.snapshot()
	requireQty(t, "5", f.repo.balance(testTenant, src))
	_, touched := after.balances[tenantKey{testTenant, dst}]
	require.False(t, touched)
	require.Len(t, after.movements, len(before.movements))
	require.Empty(t, after.transfers)
	require.Contains(t, f.audit.actions(), WorkflowTransfer+"_failed")
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t)
	f.repo.seed(testTenant, BalanceKey{LocationID: garageNorth, PartID: partFilter}, "5")

	_, err := f.svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageNorth, ToLocationID: garageNorth,
		PartID: partFilter, Quantity: qty("1"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageNorth, ToLocationID: garageClosed,
		PartID: partFilter, Quantity: qty("1"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, shared.UserSafeMessage(err), "not active")

	_, err = f.svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageNorth, ToLocationID: garageSouth,
		PartID: partFilter, Quantity: qty("0.5"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	scoped := f.actor
	scoped.Locations = []int64{garageNorth}
	ctx := f.as(scoped)
	token, err := f.tokens.Issue(ctx, scoped.TokenScope(), ActionTransfer)
	require.NoError(t, err)
	_, err = f.svc.PostTransfer(ctx, TransferInput{
		Token: token, FromLocationID: garageNorth, ToLocationID: garageSouth,
		PartID: partFilter, Quantity: qty("1"),
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
	requireQty(t, "5", f.repo.balance(testTenant, BalanceKey{LocationID: garageNorth, PartID: partFilter}))
}

func TestTransferReferenceRetriesThenFallsBack(t *testing.T) {
	f := newFixture(t)
	f.repo.seed(testTenant, BalanceKey{LocationID: garageNorth, PartID: partFilter}, "50")
	f.repo.takeReference(testTenant, "TRF-20260314092653-01")
	f.repo.takeReference(testTenant, "TRF-20260314092653-02")

	result, err := f.svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageNorth, ToLocationID: garageSouth,
		PartID: partFilter, Quantity: qty("1"),
	})
	require.NoError(t, err)
	require.Equal(t, "TRF-20260314092653-03", result.Transfer.Reference)

	for _, seq := range []string{"04", "05"} {
		f.repo.takeReference(testTenant, "TRF-20260314092653-"+seq)
	}
	result, err = f.svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageNorth, ToLocationID: garageSouth,
		PartID: partFilter, Quantity: qty("1"),
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.Transfer.Reference, "TRF-20260314092653-"))
	suffix := strings.TrimPrefix(result.Transfer.Reference, "TRF-20260314092653-")
	require.Len(t, suffix, 10)
}

func TestTransferPersistenceFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	src := BalanceKey{LocationID: garageNorth, PartID: partFilter}
	f.repo.seed(testTenant, src, "20")
	before := f.repo.snapshot()
	// Transfer ids are allocated sequentially; fail the IN leg of the next one.
	f.repo.failMovementKey = "transfer-" + itoa(f.repo.nextID+1) + "-in"

	_, err := f.svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageNorth, ToLocationID: garageSouth,
		PartID: partFilter, Quantity: qty("3"),
	})
	require.ErrorIs(t, err, shared.ErrPersistence)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.NotContains(t, shared.UserSafeMessage(err), "connection reset")

	after := f.repo.snapshot()
	requireQty(t, "20", f.repo.balance(testTenant, src))
	require.Len(t, after.movements, len(before.movements))
	require.Empty(t, after.transfers)

	failed := f.audit.last()
	require.Equal(t, WorkflowTransfer+"_failed", failed.Action)
	require.Contains(t, failed.Meta["detail"], "connection reset")
	require.Equal(t, 1, f.metrics.failures[WorkflowTransfer+":persistence"])
}

func TestConcurrentOppositeTransfersConserveStock(t *testing.T) {
	f := newFixture(t)
	north := BalanceKey{LocationID: garageNorth, PartID: partOil}
	south := BalanceKey{LocationID: garageSouth, PartID: partOil}
	f.repo.seed(testTenant, north, "100")
	f.repo.seed(testTenant, south, "100")

	tokens := make([]string, 40)
	actors := make([]shared.Actor, len(tokens))
	for i := range tokens {
		actor := f.actor
		actor.SessionID = "sess-" + itoa(int64(i))
		actors[i] = actor
		token, err := f.tokens.Issue(f.ctx, actor.TokenScope(), ActionTransfer)
		require.NoError(t, err)
		tokens[i] = token
	}

	var g errgroup.Group
	for i := range tokens {
		i := i
		g.Go(func() error {
			from, to := garageNorth, garageSouth
			if i%2 == 1 {
				from, to = to, from
			}
			_, err := f.svc.PostTransfer(f.as(actors[i]), TransferInput{
				Token: tokens[i], FromLocationID: from, ToLocationID: to, PartID: partOil, Quantity: qty("1.5"),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	total := f.repo.balance(testTenant, north).Add(f.repo.balance(testTenant, south))
	requireQty(t, "200", total)
	requireQty(t, "100", f.repo.balance(testTenant, north))
	require.Len(t, f.repo.snapshot().transfers, len(tokens))

	drifts, err := f.svc.ReconcileAll(f.ctx, 1)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestReconcileDetectsDrift(t *testing.T) {
	f := newFixture(t)
	key := BalanceKey{LocationID: garageNorth, PartID: partFilter}
	f.repo.seed(testTenant, key, "7")
	_, err := f.svc.PostAdjustment(f.ctx, AdjustmentInput{
		Token: f.token(t, ActionAdjustment), LocationID: garageNorth, PartID: partFilter,
		Operation: MovementOut, Quantity: qty("2"),
	})
	require.NoError(t, err)

	drift, err := f.svc.ReconcilePair(f.ctx, testTenant, key)
	require.NoError(t, err)
	require.Nil(t, drift)

	f.repo.mu.Lock()
	bal := f.repo.state.balances[tenantKey{testTenant, key}]
	bal.Qty = qty("9")
	f.repo.state.balances[tenantKey{testTenant, key}] = bal
	f.repo.mu.Unlock()

	drifts, err := f.svc.ReconcileAll(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	requireQty(t, "5", drifts[0].LedgerTotal)
	requireQty(t, "4", drifts[0].Difference())
	require.Equal(t, 1, f.metrics.drift)

	_, err = f.svc.ReconcilePair(f.ctx, testTenant, BalanceKey{LocationID: garageSouth, PartID: partOil})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReadsRespectScope(t *testing.T) {
	f := newFixture(t)
	f.repo.seed(testTenant, BalanceKey{LocationID: garageNorth, PartID: partFilter}, "4")

	bal, err := f.svc.GetBalance(f.ctx, BalanceKey{LocationID: garageSouth, PartID: partFilter})
	require.NoError(t, err)
	require.True(t, bal.Qty.IsZero())

	movements, page, err := f.svc.ListMovements(f.ctx, MovementFilter{LocationID: garageNorth})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, 1, page.Total)
	require.Equal(t, 1, page.Page)

	scoped := f.actor
	scoped.Locations = []int64{garageSouth}
	_, err = f.svc.GetBalance(f.as(scoped), BalanceKey{LocationID: garageNorth, PartID: partFilter})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.GetBalance(context.Background(), BalanceKey{LocationID: garageNorth, PartID: partFilter})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestScopedListingsStayInScope(t *testing.T) {
	f := newFixture(t)
	f.repo.seed(testTenant, BalanceKey{LocationID: garageNorth, PartID: partFilter}, "4")
	f.repo.seed(testTenant, BalanceKey{LocationID: garageSouth, PartID: partOil}, "3")

	southEntry, err := f.svc.OpenTempStock(f.ctx, TempStockInput{
		Token: f.token(t, ActionTempStockIn), LocationID: garageSouth, PartID: partFilter, Quantity: qty("1"),
	})
	require.NoError(t, err)
	f.openTemp(t, partFilter, "2")
	f.openTemp(t, partOil, "1")

	scoped := f.actor
	scoped.Locations = []int64{garageSouth}
	ctx := f.as(scoped)

	movements, page, err := f.svc.ListMovements(ctx, MovementFilter{})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, garageSouth, movements[0].LocationID)
	require.Equal(t, 1, page.Total)

	entries, err := f.svc.ListTempStock(ctx, TempStockFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, southEntry.Entry.ID, entries[0].ID)

	all, _, err := f.svc.ListMovements(f.ctx, MovementFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestQuantityScaleIsBounded(t *testing.T) {
	f := newFixture(t)
	key := BalanceKey{LocationID: garageNorth, PartID: partOil}
	f.repo.seed(testTenant, key, "10")

	for _, q := range []string{"0.00004", "0.00005", "1.23456"} {
		_, err := f.svc.PostAdjustment(f.ctx, AdjustmentInput{
			Token: f.token(t, ActionAdjustment), LocationID: garageNorth, PartID: partOil,
			Operation: MovementOut, Quantity: qty(q),
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, q)
		require.Equal(t, "quantity", vErr.Field)
	}

	_, err := f.svc.PostTransfer(f.ctx, TransferInput{
		Token: f.token(t, ActionTransfer), FromLocationID: garageNorth, ToLocationID: garageSouth,
		PartID: partOil, Quantity: qty("0.00001"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.OpenTempStock(f.ctx, TempStockInput{
		Token: f.token(t, ActionTempStockIn), LocationID: garageNorth, PartID: partOil, Quantity: qty("0.12345"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	requireQty(t, "10", f.repo.balance(testTenant, key))
	require.Empty(t, f.repo.movementsFor(key))

	result, err := f.svc.PostAdjustment(f.ctx, AdjustmentInput{
		Token: f.token(t, ActionAdjustment), LocationID: garageNorth, PartID: partOil,
		Operation: MovementOut, Quantity: qty("0.12500"),
	})
	require.NoError(t, err)
	requireQty(t, "9.875", result.Balance)
}
