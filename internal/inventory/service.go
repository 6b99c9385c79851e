package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/partsledger/internal/purchasing"
	"github.com/odyssey-erp/partsledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, tenantID int64, key BalanceKey) (Balance, error)
	ListBalances(ctx context.Context, tenantID, locationID int64) ([]Balance, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
	GetTransfer(ctx context.Context, tenantID, id int64) (Transfer, error)
	GetTempStock(ctx context.Context, tenantID, id int64) (TempStockEntry, []TempStockEvent, error)
	ListTempStock(ctx context.Context, filter TempStockFilter) ([]TempStockEntry, error)
	ListBalancesAfter(ctx context.Context, cursor BalanceCursor, limit int) ([]Balance, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TokenGuard consumes single-use action tokens.
type TokenGuard interface {
	Consume(ctx context.Context, scope, action, token string) (bool, error)
}

// QuantityPolicy decides whether a quantity is acceptable for a unit.
type QuantityPolicy interface {
	Permits(ctx context.Context, tenantID int64, unitCode string, qty decimal.Decimal) (bool, error)
}

// MetricsPort records workflow outcomes.
type MetricsPort interface {
	MovementPosted(kind string)
	WorkflowFailed(workflow, reason string)
	ReconcileDrift(count int)
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	tokens      TokenGuard
	policy      QuantityPolicy
	notifier    Notifier
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
	refAttempts int
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// ReferenceAttempts bounds sequential reference attempts before the random fallback.
	ReferenceAttempts int
	Now               func() time.Time
	Logger            *slog.Logger
	Metrics           MetricsPort
}

const defaultReferenceAttempts = 5

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, tokens TokenGuard, policy QuantityPolicy, cfg ServiceConfig, notifier Notifier) *Service {
	svc := &Service{
		repo:        repo,
		audit:       audit,
		tokens:      tokens,
		policy:      policy,
		notifier:    notifier,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
		refAttempts: cfg.ReferenceAttempts,
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.refAttempts <= 0 {
		svc.refAttempts = defaultReferenceAttempts
	}
	return svc
}

// PostAdjustment applies a signed delta to one balance. Inbound adjustments
// also open an unassigned purchase carrying the part's cost and tax rate.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return AdjustmentResult{}, err
	}
	entity := BalanceKey{LocationID: input.LocationID, PartID: input.PartID}.String()
	if err := validateAdjustment(actor, input); err != nil {
		return AdjustmentResult{}, s.fail(ctx, actor, WorkflowAdjustment, entity, err)
	}
	if err := s.consumeToken(ctx, actor, ActionAdjustment, input.Token); err != nil {
		return AdjustmentResult{}, s.fail(ctx, actor, WorkflowAdjustment, entity, err)
	}

	now := s.now()
	key := BalanceKey{LocationID: input.LocationID, PartID: input.PartID}
	allowNeg := input.AllowNegative && actor.Can(shared.PermNegativeStock)
	delta := input.Quantity
	switch input.Operation {
	case MovementIn:
		delta = input.Quantity.Abs()
	case MovementOut:
		delta = input.Quantity.Abs().Neg()
	}
	qty := input.Quantity
	if input.Operation != MovementAdjust {
		qty = qty.Abs()
	}

	var result AdjustmentResult
	var before decimal.Decimal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireActive(ctx, tx, actor.TenantID, input.LocationID); err != nil {
			return err
		}
		part, err := tx.GetPart(ctx, actor.TenantID, input.PartID)
		if err != nil {
			return err
		}
		if err := s.checkQuantity(ctx, actor.TenantID, part, qty); err != nil {
			return err
		}
		lt := newLedgerTx(tx, actor.TenantID)
		handles, err := lt.lock(ctx, key)
		if err != nil {
			return err
		}
		bal := handles[0]
		before = bal.Quantity()
		if before.Add(delta).IsNegative() && !allowNeg {
			return &InsufficientStockError{LocationID: key.LocationID, PartID: key.PartID, Available: before}
		}
		movement := Movement{
			Kind:           input.Operation,
			Qty:            qty,
			RefKind:        RefAdjustment,
			IdempotencyKey: "adjustment-" + shared.Fingerprint(input.Token, strconv.FormatInt(key.LocationID, 10), strconv.FormatInt(key.PartID, 10), now.Format(time.RFC3339Nano)),
			Notes:          input.Notes,
			ActorID:        actor.ID,
			PostedAt:       now,
		}
		if input.Operation == MovementIn {
			purchase, err := tx.OpenPurchase(ctx, purchasing.UnassignedInput{
				TenantID:   actor.TenantID,
				LocationID: key.LocationID,
				PartID:     key.PartID,
				Quantity:   qty,
				UnitCost:   part.UnitCost,
				TaxRate:    part.TaxRate,
				Source:     purchasing.SourceStockIn,
				Notes:      input.Notes,
				ActorID:    actor.ID,
			})
			if err != nil {
				return fmt.Errorf("open purchase: %w", err)
			}
			movement.RefKind = RefPurchase
			movement.RefID = purchase.ID
			result.PurchaseID = purchase.ID
		}
		posted, err := lt.applyMovement(ctx, bal, movement)
		if err != nil {
			return err
		}
		result.Movement = posted
		result.Balance = bal.Quantity()
		return nil
	})
	if err != nil {
		return AdjustmentResult{}, s.fail(ctx, actor, WorkflowAdjustment, entity, classify("post adjustment", err))
	}

	s.recordMovements(result.Movement)
	s.record(ctx, actor, WorkflowAdjustment, strconv.FormatInt(result.Movement.ID, 10),
		fmt.Sprintf("%s %s at location %d for part %d", input.Operation, qty.String(), key.LocationID, key.PartID),
		map[string]any{"qty": before.String()},
		map[string]any{"qty": result.Balance.String()},
		map[string]any{
			"location_id":    key.LocationID,
			"part_id":        key.PartID,
			"operation":      string(input.Operation),
			"allow_negative": allowNeg,
			"purchase_id":    result.PurchaseID,
		})
	s.notify(ctx, BalanceChangedEvent{
		TenantID:   actor.TenantID,
		LocationID: key.LocationID,
		PartID:     key.PartID,
		Qty:        result.Balance,
		Workflow:   WorkflowAdjustment,
		Reference:  result.Movement.IdempotencyKey,
		At:         now,
	})
	return result, nil
}

// PostTransfer moves stock between two locations as one OUT and one IN movement.
func (s *Service) PostTransfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return TransferResult{}, err
	}
	entity := fmt.Sprintf("%d->%d:%d", input.FromLocationID, input.ToLocationID, input.PartID)
	if err := validateTransfer(actor, input); err != nil {
		return TransferResult{}, s.fail(ctx, actor, WorkflowTransfer, entity, err)
	}
	if err := s.consumeToken(ctx, actor, ActionTransfer, input.Token); err != nil {
		return TransferResult{}, s.fail(ctx, actor, WorkflowTransfer, entity, err)
	}

	now := s.now()
	qty := input.Quantity
	srcKey := BalanceKey{LocationID: input.FromLocationID, PartID: input.PartID}
	dstKey := BalanceKey{LocationID: input.ToLocationID, PartID: input.PartID}
	allowNeg := input.AllowNegativeSource && actor.Can(shared.PermNegativeStock)
	fingerprint := shared.Fingerprint(input.Token,
		strconv.FormatInt(srcKey.LocationID, 10),
		strconv.FormatInt(dstKey.LocationID, 10),
		strconv.FormatInt(input.PartID, 10),
		qty.String())

	var result TransferResult
	var srcBefore, dstBefore decimal.Decimal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireActive(ctx, tx, actor.TenantID, srcKey.LocationID, dstKey.LocationID); err != nil {
			return err
		}
		part, err := tx.GetPart(ctx, actor.TenantID, input.PartID)
		if err != nil {
			return err
		}
		if err := s.checkQuantity(ctx, actor.TenantID, part, qty); err != nil {
			return err
		}
		lt := newLedgerTx(tx, actor.TenantID)
		handles, err := lt.lock(ctx, srcKey, dstKey)
		if err != nil {
			return err
		}
		src, dst := handles[0], handles[1]
		srcBefore, dstBefore = src.Quantity(), dst.Quantity()
		if srcBefore.Sub(qty).IsNegative() && !allowNeg {
			return &InsufficientStockError{LocationID: srcKey.LocationID, PartID: srcKey.PartID, Available: srcBefore}
		}

		transfer := Transfer{
			TenantID:       actor.TenantID,
			FromLocationID: srcKey.LocationID,
			ToLocationID:   dstKey.LocationID,
			PartID:         input.PartID,
			Qty:            qty,
			Fingerprint:    fingerprint,
			Status:         TransferPosted,
			Notes:          input.Notes,
			ActorID:        actor.ID,
			CreatedAt:      now,
		}
		id, ref, err := s.withReference(ctx, "TRF", now, func(ref string) (int64, error) {
			transfer.Reference = ref
			return tx.InsertTransfer(ctx, transfer)
		})
		if err != nil {
			return err
		}
		transfer.ID, transfer.Reference = id, ref

		out, err := lt.applyMovement(ctx, src, Movement{
			Kind:           MovementOut,
			Qty:            qty,
			RefKind:        RefTransfer,
			RefID:          id,
			IdempotencyKey: fmt.Sprintf("transfer-%d-out", id),
			Notes:          transferNote("to", dstKey.LocationID, input.Notes),
			ActorID:        actor.ID,
			PostedAt:       now,
		})
		if err != nil {
			return err
		}
		in, err := lt.applyMovement(ctx, dst, Movement{
			Kind:           MovementIn,
			Qty:            qty,
			RefKind:        RefTransfer,
			RefID:          id,
			IdempotencyKey: fmt.Sprintf("transfer-%d-in", id),
			Notes:          transferNote("from", srcKey.LocationID, input.Notes),
			ActorID:        actor.ID,
			PostedAt:       now,
		})
		if err != nil {
			return err
		}
		result = TransferResult{
			Transfer:      transfer,
			SourceBalance: src.Quantity(),
			TargetBalance: dst.Quantity(),
			Out:           out,
			In:            in,
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, s.fail(ctx, actor, WorkflowTransfer, entity, classify("post transfer", err))
	}

	s.recordMovements(result.Out, result.In)
	s.record(ctx, actor, WorkflowTransfer, result.Transfer.Reference,
		fmt.Sprintf("Transfer %s of part %d from location %d to %d", qty.String(), input.PartID, srcKey.LocationID, dstKey.LocationID),
		map[string]any{"source_qty": srcBefore.String(), "target_qty": dstBefore.String()},
		map[string]any{"source_qty": result.SourceBalance.String(), "target_qty": result.TargetBalance.String()},
		map[string]any{
			"transfer_id":    result.Transfer.ID,
			"allow_negative": allowNeg,
		})
	for _, side := range []struct {
		key BalanceKey
		qty decimal.Decimal
	}{{srcKey, result.SourceBalance}, {dstKey, result.TargetBalance}} {
		s.notify(ctx, BalanceChangedEvent{
			TenantID:   actor.TenantID,
			LocationID: side.key.LocationID,
			PartID:     side.key.PartID,
			Qty:        side.qty,
			Workflow:   WorkflowTransfer,
			Reference:  result.Transfer.Reference,
			At:         now,
		})
	}
	return result, nil
}

// GetBalance returns the current balance; untouched pairs report zero.
func (s *Service) GetBalance(ctx context.Context, key BalanceKey) (Balance, error) {
	actor, err := s.reader(ctx, key.LocationID)
	if err != nil {
		return Balance{}, err
	}
	bal, err := s.repo.GetBalance(ctx, actor.TenantID, key)
	if errors.Is(err, shared.ErrNotFound) {
		return Balance{TenantID: actor.TenantID, LocationID: key.LocationID, PartID: key.PartID, Qty: decimal.Zero}, nil
	}
	if err != nil {
		return Balance{}, classify("get balance", err)
	}
	return bal, nil
}

// ListBalances lists every balance at a location.
func (s *Service) ListBalances(ctx context.Context, locationID int64) ([]Balance, error) {
	if locationID <= 0 {
		return nil, invalid("location_id", "Location is required.")
	}
	actor, err := s.reader(ctx, locationID)
	if err != nil {
		return nil, err
	}
	balances, err := s.repo.ListBalances(ctx, actor.TenantID, locationID)
	if err != nil {
		return nil, classify("list balances", err)
	}
	return balances, nil
}

// ListMovements lists ledger entries, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	actor, err := s.reader(ctx, filter.LocationID)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.TenantID = actor.TenantID
	filter.LocationIDs = nil
	if filter.LocationID == 0 && len(actor.Locations) > 0 {
		filter.LocationIDs = actor.Locations
	}
	filter.Limit = shared.ClampPerPage(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	movements, total, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, classify("list movements", err)
	}
	return movements, shared.NewPagination(filter.Offset/filter.Limit+1, filter.Limit, total), nil
}

// GetTransfer loads a transfer record.
func (s *Service) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	actor, err := s.reader(ctx)
	if err != nil {
		return Transfer{}, err
	}
	transfer, err := s.repo.GetTransfer(ctx, actor.TenantID, id)
	if err != nil {
		return Transfer{}, classify("get transfer", err)
	}
	if !actor.InScope(transfer.FromLocationID) && !actor.InScope(transfer.ToLocationID) {
		return Transfer{}, fmt.Errorf("inventory: transfer %d: %w", id, shared.ErrNotFound)
	}
	return transfer, nil
}

// ReconcilePair compares a balance with the sum of its movements under the
// balance lock. A nil Drift means the pair reconciles.
func (s *Service) ReconcilePair(ctx context.Context, tenantID int64, key BalanceKey) (*Drift, error) {
	if _, err := s.repo.GetBalance(ctx, tenantID, key); err != nil {
		return nil, classify("reconcile pair", err)
	}
	var drift *Drift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lt := newLedgerTx(tx, tenantID)
		handles, err := lt.lock(ctx, key)
		if err != nil {
			return err
		}
		total, err := tx.MovementTotal(ctx, tenantID, key)
		if err != nil {
			return err
		}
		if !handles[0].Quantity().Equal(total) {
			drift = &Drift{TenantID: tenantID, Key: key, Balance: handles[0].Quantity(), LedgerTotal: total}
		}
		return nil
	})
	if err != nil {
		return nil, classify("reconcile pair", err)
	}
	if drift != nil {
		s.logger.Warn("inventory balance drift",
			slog.Int64("tenant_id", tenantID),
			slog.String("pair", key.String()),
			slog.String("balance", drift.Balance.String()),
			slog.String("ledger_total", drift.LedgerTotal.String()))
	}
	return drift, nil
}

// ReconcileAll walks every balance in key order and returns the pairs that drift.
func (s *Service) ReconcileAll(ctx context.Context, batch int) ([]Drift, error) {
	if batch <= 0 {
		batch = 200
	}
	var drifts []Drift
	cursor := BalanceCursor{}
	for {
		page, err := s.repo.ListBalancesAfter(ctx, cursor, batch)
		if err != nil {
			return drifts, classify("list balances", err)
		}
		for _, bal := range page {
			if err := ctx.Err(); err != nil {
				return drifts, err
			}
			drift, err := s.ReconcilePair(ctx, bal.TenantID, bal.Key())
			if err != nil {
				return drifts, err
			}
			if drift != nil {
				drifts = append(drifts, *drift)
			}
		}
		if len(page) < batch {
			break
		}
		last := page[len(page)-1]
		cursor = BalanceCursor{TenantID: last.TenantID, LocationID: last.LocationID, PartID: last.PartID}
	}
	if s.metrics != nil {
		s.metrics.ReconcileDrift(len(drifts))
	}
	return drifts, nil
}

func validateAdjustment(actor shared.Actor, input AdjustmentInput) error {
	if input.LocationID <= 0 {
		return invalid("location_id", "Location is required.")
	}
	if input.PartID <= 0 {
		return invalid("part_id", "Part is required.")
	}
	switch input.Operation {
	case MovementIn, MovementOut:
		if !input.Quantity.IsPositive() {
			return invalid("quantity", "Quantity must be greater than zero.")
		}
	case MovementAdjust:
		if input.Quantity.IsZero() {
			return invalid("quantity", "Adjustment quantity cannot be zero.")
		}
	default:
		return invalid("operation", "Operation must be IN, OUT or ADJUST.")
	}
	if err := checkScale(input.Quantity); err != nil {
		return err
	}
	if input.AllowNegative && !actor.Can(shared.PermNegativeStock) {
		return invalid("allow_negative", "You are not authorized to allow negative stock.")
	}
	if !actor.InScope(input.LocationID) {
		return fmt.Errorf("inventory: location %d: %w", input.LocationID, shared.ErrForbidden)
	}
	return nil
}

func validateTransfer(actor shared.Actor, input TransferInput) error {
	if input.FromLocationID <= 0 || input.ToLocationID <= 0 {
		return invalid("location_id", "Source and destination locations are required.")
	}
	if input.FromLocationID == input.ToLocationID {
		return invalid("to_location_id", "Source and destination locations must differ.")
	}
	if input.PartID <= 0 {
		return invalid("part_id", "Part is required.")
	}
	if !input.Quantity.IsPositive() {
		return invalid("quantity", "Quantity must be greater than zero.")
	}
	if err := checkScale(input.Quantity); err != nil {
		return err
	}
	if input.AllowNegativeSource && !actor.Can(shared.PermNegativeStock) {
		return invalid("allow_negative_source", "You are not authorized to allow negative stock.")
	}
	if !actor.InScope(input.FromLocationID, input.ToLocationID) {
		return fmt.Errorf("inventory: locations %d,%d: %w", input.FromLocationID, input.ToLocationID, shared.ErrForbidden)
	}
	return nil
}

// checkScale rejects quantities finer than the ledger's NUMERIC(18,4) columns.
func checkScale(q decimal.Decimal) error {
	if !q.Equal(q.Truncate(QuantityScale)) {
		return invalid("quantity", "Quantity supports at most %d decimal places.", QuantityScale)
	}
	return nil
}

func requireActive(ctx context.Context, tx TxRepository, tenantID int64, ids ...int64) error {
	active, err := tx.ActiveLocations(ctx, tenantID, ids...)
	if err != nil {
		return fmt.Errorf("load locations: %w", err)
	}
	for _, id := range ids {
		if !active[id] {
			return invalid("location_id", "Location %d is not active.", id)
		}
	}
	return nil
}

func (s *Service) checkQuantity(ctx context.Context, tenantID int64, part Part, qty decimal.Decimal) error {
	if s.policy == nil {
		return nil
	}
	ok, err := s.policy.Permits(ctx, tenantID, part.UnitCode, qty)
	if err != nil {
		return fmt.Errorf("unit policy: %w", err)
	}
	if !ok {
		unit := part.UnitCode
		if unit == "" {
			unit = "units"
		}
		return invalid("quantity", "%s is tracked in whole %s; %s is not allowed.", part.Label(), unit, qty.String())
	}
	return nil
}

func (s *Service) actor(ctx context.Context) (shared.Actor, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok || actor.ID == 0 || actor.TenantID == 0 {
		return shared.Actor{}, fmt.Errorf("inventory: actor required: %w", shared.ErrUnauthorized)
	}
	return actor, nil
}

func (s *Service) reader(ctx context.Context, locationIDs ...int64) (shared.Actor, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return shared.Actor{}, err
	}
	for _, id := range locationIDs {
		if id != 0 && !actor.InScope(id) {
			return shared.Actor{}, fmt.Errorf("inventory: location %d: %w", id, shared.ErrForbidden)
		}
	}
	return actor, nil
}

// consumeToken burns the action token; a false result is a duplicate, never an effect.
func (s *Service) consumeToken(ctx context.Context, actor shared.Actor, action, token string) error {
	if s.tokens == nil {
		return &PersistenceError{Op: "consume action token", Err: errors.New("token guard not configured")}
	}
	ok, err := s.tokens.Consume(ctx, actor.TokenScope(), action, token)
	if err != nil {
		return &PersistenceError{Op: "consume action token", Err: err}
	}
	if !ok {
		return fmt.Errorf("inventory: %s: %w", action, shared.ErrDuplicateRequest)
	}
	return nil
}

// fail logs a workflow failure and records its internal detail in the audit
// trail. The returned error is the one callers render.
func (s *Service) fail(ctx context.Context, actor shared.Actor, workflow, entityID string, err error) error {
	reason := failureReason(err)
	if s.metrics != nil {
		s.metrics.WorkflowFailed(workflow, reason)
	}
	if errors.Is(err, shared.ErrDuplicateRequest) {
		s.logger.Info("inventory duplicate submission ignored",
			slog.String("workflow", workflow),
			slog.Int64("actor_id", actor.ID))
		return err
	}
	level := slog.LevelWarn
	if reason == "persistence" {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "inventory workflow failed",
		slog.String("workflow", workflow),
		slog.String("entity", entityID),
		slog.String("reason", reason),
		slog.Int64("tenant_id", actor.TenantID),
		slog.Int64("actor_id", actor.ID),
		slog.Any("error", err))
	s.record(ctx, actor, workflow+"_failed", entityID, shared.UserSafeMessage(err), nil, nil,
		map[string]any{"reason": reason, "detail": err.Error()})
	return err
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action, entityID, message string, before, after, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.ID,
		Domain:   "inventory",
		Action:   action,
		EntityID: entityID,
		Message:  message,
		Before:   before,
		After:    after,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Error("inventory audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) recordMovements(movements ...Movement) {
	if s.metrics == nil {
		return
	}
	for _, m := range movements {
		s.metrics.MovementPosted(string(m.Kind))
	}
}

func (s *Service) notify(ctx context.Context, evt BalanceChangedEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.HandleBalanceChanged(ctx, evt); err != nil {
		s.logger.Warn("inventory balance notification failed",
			slog.String("workflow", evt.Workflow),
			slog.String("pair", BalanceKey{LocationID: evt.LocationID, PartID: evt.PartID}.String()),
			slog.Any("error", err))
	}
}

func transferNote(direction string, locationID int64, notes string) string {
	if notes == "" {
		return fmt.Sprintf("Transfer %s location %d", direction, locationID)
	}
	return fmt.Sprintf("Transfer %s location %d: %s", direction, locationID, notes)
}
