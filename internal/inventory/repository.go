package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/partsledger/internal/platform/db"
	"github.com/odyssey-erp/partsledger/internal/purchasing"
	"github.com/odyssey-erp/partsledger/internal/shared"
)

const (
	constraintMovementKey         = "inventory_movements_idempotency_key_key"
	constraintTransferReference   = "inventory_transfers_tenant_reference_key"
	constraintTransferFingerprint = "inventory_transfers_fingerprint_key"
	constraintTempStockReference  = "temp_stock_entries_tenant_reference_key"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txOpts db.TxOptions) *Repository {
	return &Repository{pool: pool, txOpts: txOpts}
}

type txRepo struct {
	tx        pgx.Tx
	purchases *purchasing.TxWriter
}

// WithTx executes the callback inside a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.txOpts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, purchases: purchasing.NewTxWriter(tx)})
	})
}

const balanceColumns = `tenant_id, location_id, part_id, qty, updated_at`

func scanBalance(row pgx.Row) (Balance, error) {
	var b Balance
	err := row.Scan(&b.TenantID, &b.LocationID, &b.PartID, &b.Qty, &b.UpdatedAt)
	return b, err
}

// GetBalance reads a balance without locking.
func (r *Repository) GetBalance(ctx context.Context, tenantID int64, key BalanceKey) (Balance, error) {
	b, err := scanBalance(r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM inventory_balances
WHERE tenant_id=$1 AND location_id=$2 AND part_id=$3`, tenantID, key.LocationID, key.PartID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, fmt.Errorf("balance %s: %w", key, shared.ErrNotFound)
	}
	return b, err
}

// ListBalances lists balances at one location.
func (r *Repository) ListBalances(ctx context.Context, tenantID, locationID int64) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+balanceColumns+` FROM inventory_balances
WHERE tenant_id=$1 AND location_id=$2 ORDER BY part_id`, tenantID, locationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Balance, error) { return scanBalance(row) })
}

// ListBalancesAfter pages through all balances in (tenant, location, part) order.
func (r *Repository) ListBalancesAfter(ctx context.Context, cursor BalanceCursor, limit int) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+balanceColumns+` FROM inventory_balances
WHERE (tenant_id, location_id, part_id) > ($1, $2, $3)
ORDER BY tenant_id, location_id, part_id LIMIT $4`, cursor.TenantID, cursor.LocationID, cursor.PartID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Balance, error) { return scanBalance(row) })
}

const movementColumns = `id, tenant_id, location_id, part_id, kind, qty, ref_kind, ref_id, idempotency_key, notes, actor_id, posted_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		m       Movement
		kind    string
		refKind string
		refID   pgtype.Int8
		actorID pgtype.Int8
	)
	if err := row.Scan(&m.ID, &m.TenantID, &m.LocationID, &m.PartID, &kind, &m.Qty, &refKind, &refID, &m.IdempotencyKey, &m.Notes, &actorID, &m.PostedAt); err != nil {
		return Movement{}, err
	}
	m.Kind = MovementKind(kind)
	m.RefKind = ReferenceKind(refKind)
	m.RefID = refID.Int64
	m.ActorID = actorID.Int64
	return m, nil
}

// ListMovements returns one page of movements and the total match count.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	where := []string{"tenant_id=$1"}
	args := []any{filter.TenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.LocationID != 0 {
		add("location_id=$%d", filter.LocationID)
	} else if len(filter.LocationIDs) > 0 {
		add("location_id = ANY($%d)", filter.LocationIDs)
	}
	if filter.PartID != 0 {
		add("part_id=$%d", filter.PartID)
	}
	if !filter.From.IsZero() {
		add("posted_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("posted_at < $%d", filter.To)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_movements WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM inventory_movements WHERE %s ORDER BY posted_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		movementColumns, clause, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	movements, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Movement, error) { return scanMovement(row) })
	if err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

const transferColumns = `id, tenant_id, from_location_id, to_location_id, part_id, qty, reference, fingerprint, status, notes, actor_id, created_at`

// GetTransfer loads a transfer record.
func (r *Repository) GetTransfer(ctx context.Context, tenantID, id int64) (Transfer, error) {
	var (
		t       Transfer
		status  string
		actorID pgtype.Int8
	)
	err := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM inventory_transfers WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&t.ID, &t.TenantID, &t.FromLocationID, &t.ToLocationID, &t.PartID, &t.Qty, &t.Reference, &t.Fingerprint, &status, &t.Notes, &actorID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, fmt.Errorf("transfer %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Transfer{}, err
	}
	t.Status = TransferStatus(status)
	t.ActorID = actorID.Int64
	return t, nil
}

const tempStockColumns = `id, tenant_id, location_id, part_id, reference, qty, status, notes, resolved_by, resolved_at, resolution_notes, linked_purchase_id, created_by, created_at`

func scanTempStock(row pgx.Row) (TempStockEntry, error) {
	var (
		e          TempStockEntry
		status     string
		resolvedBy pgtype.Int8
		resolvedAt pgtype.Timestamptz
		linked     pgtype.Int8
		createdBy  pgtype.Int8
	)
	err := row.Scan(&e.ID, &e.TenantID, &e.LocationID, &e.PartID, &e.Reference, &e.Qty, &status, &e.Notes,
		&resolvedBy, &resolvedAt, &e.ResolutionNotes, &linked, &createdBy, &e.CreatedAt)
	if err != nil {
		return TempStockEntry{}, err
	}
	e.Status = TempStockStatus(status)
	e.ResolvedBy = resolvedBy.Int64
	e.ResolvedAt = resolvedAt.Time
	e.LinkedPurchaseID = linked.Int64
	e.CreatedBy = createdBy.Int64
	return e, nil
}

// GetTempStock loads an entry and its events in order.
func (r *Repository) GetTempStock(ctx context.Context, tenantID, id int64) (TempStockEntry, []TempStockEvent, error) {
	entry, err := scanTempStock(r.pool.QueryRow(ctx, `SELECT `+tempStockColumns+` FROM temp_stock_entries WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return TempStockEntry{}, nil, fmt.Errorf("temp stock %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return TempStockEntry{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, event_type, qty, from_status, to_status, linked_purchase_id, actor_id, occurred_at
FROM temp_stock_events WHERE entry_id=$1 ORDER BY id`, id)
	if err != nil {
		return TempStockEntry{}, nil, err
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TempStockEvent, error) {
		var (
			evt           TempStockEvent
			typ, from, to string
			linked, actor pgtype.Int8
		)
		if err := row.Scan(&evt.ID, &evt.EntryID, &typ, &evt.Qty, &from, &to, &linked, &actor, &evt.At); err != nil {
			return TempStockEvent{}, err
		}
		evt.Type = TempStockEventType(typ)
		evt.FromStatus = TempStockStatus(from)
		evt.ToStatus = TempStockStatus(to)
		evt.LinkedPurchaseID = linked.Int64
		evt.ActorID = actor.Int64
		return evt, nil
	})
	if err != nil {
		return TempStockEntry{}, nil, err
	}
	return entry, events, nil
}

// ListTempStock lists entries newest first.
func (r *Repository) ListTempStock(ctx context.Context, filter TempStockFilter) ([]TempStockEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tempStockColumns+` FROM temp_stock_entries
WHERE tenant_id=$1 AND ($2 = 0 OR location_id=$2) AND ($3 = '' OR status=$3)
  AND (cardinality($5::bigint[]) = 0 OR location_id = ANY($5))
ORDER BY created_at DESC, id DESC LIMIT $4`, filter.TenantID, filter.LocationID, string(filter.Status), filter.Limit, scopeArg(filter.LocationIDs))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TempStockEntry, error) { return scanTempStock(row) })
}

func (r *txRepo) LockOrInitBalance(ctx context.Context, tenantID int64, key BalanceKey) (decimal.Decimal, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (tenant_id, location_id, part_id, qty, updated_at)
VALUES ($1,$2,$3,0,NOW()) ON CONFLICT (tenant_id, location_id, part_id) DO NOTHING`, tenantID, key.LocationID, key.PartID); err != nil {
		return decimal.Zero, err
	}
	var qty decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT qty FROM inventory_balances
WHERE tenant_id=$1 AND location_id=$2 AND part_id=$3 FOR UPDATE`, tenantID, key.LocationID, key.PartID).Scan(&qty)
	return qty, err
}

func (r *txRepo) WriteBalance(ctx context.Context, tenantID int64, key BalanceKey, qty decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_balances SET qty=$4, updated_at=NOW()
WHERE tenant_id=$1 AND location_id=$2 AND part_id=$3`, tenantID, key.LocationID, key.PartID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("balance %s not initialised", key)
	}
	return nil
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (tenant_id, location_id, part_id, kind, qty, ref_kind, ref_id, idempotency_key, notes, actor_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		m.TenantID, m.LocationID, m.PartID, string(m.Kind), m.Qty, string(m.RefKind), nullInt(m.RefID),
		m.IdempotencyKey, m.Notes, nullInt(m.ActorID), m.PostedAt).Scan(&id)
	if shared.IsUniqueViolation(err, constraintMovementKey) {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateMovement, m.IdempotencyKey)
	}
	return id, err
}

func (r *txRepo) MovementTotal(ctx context.Context, tenantID int64, key BalanceKey) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(CASE kind WHEN 'OUT' THEN -ABS(qty) WHEN 'IN' THEN ABS(qty) ELSE qty END), 0)
FROM inventory_movements WHERE tenant_id=$1 AND location_id=$2 AND part_id=$3`, tenantID, key.LocationID, key.PartID).Scan(&total)
	return total, err
}

func (r *txRepo) GetPart(ctx context.Context, tenantID, partID int64) (Part, error) {
	p := Part{ID: partID, TenantID: tenantID}
	err := r.tx.QueryRow(ctx, `SELECT sku, name, unit_code, unit_cost, tax_rate FROM parts WHERE tenant_id=$1 AND id=$2`, tenantID, partID).
		Scan(&p.SKU, &p.Name, &p.UnitCode, &p.UnitCost, &p.TaxRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Part{}, fmt.Errorf("part %d: %w", partID, shared.ErrNotFound)
	}
	return p, err
}

func (r *txRepo) ActiveLocations(ctx context.Context, tenantID int64, ids ...int64) (map[int64]bool, error) {
	rows, err := r.tx.Query(ctx, `SELECT id FROM locations WHERE tenant_id=$1 AND id = ANY($2) AND is_active`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	active, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(active))
	for _, id := range active {
		out[id] = true
	}
	return out, nil
}

func (r *txRepo) OpenPurchase(ctx context.Context, input purchasing.UnassignedInput) (purchasing.Purchase, error) {
	return r.purchases.OpenUnassigned(ctx, input)
}

func (r *txRepo) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	var id int64
	err := r.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO inventory_transfers (tenant_id, from_location_id, to_location_id, part_id, qty, reference, fingerprint, status, notes, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
			t.TenantID, t.FromLocationID, t.ToLocationID, t.PartID, t.Qty, t.Reference, t.Fingerprint,
			string(t.Status), t.Notes, nullInt(t.ActorID), t.CreatedAt).Scan(&id)
	})
	switch {
	case shared.IsUniqueViolation(err, constraintTransferReference):
		return 0, errReferenceTaken
	case shared.IsUniqueViolation(err, constraintTransferFingerprint):
		return 0, fmt.Errorf("%w: transfer fingerprint", ErrDuplicateMovement)
	}
	return id, err
}

func (r *txRepo) InsertTempStock(ctx context.Context, e TempStockEntry) (int64, error) {
	var id int64
	err := r.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO temp_stock_entries (tenant_id, location_id, part_id, reference, qty, status, notes, resolution_notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,'',$8,$9) RETURNING id`,
			e.TenantID, e.LocationID, e.PartID, e.Reference, e.Qty, string(e.Status), e.Notes, nullInt(e.CreatedBy), e.CreatedAt).Scan(&id)
	})
	if shared.IsUniqueViolation(err, constraintTempStockReference) {
		return 0, errReferenceTaken
	}
	return id, err
}

func (r *txRepo) GetTempStockForUpdate(ctx context.Context, tenantID, id int64) (TempStockEntry, error) {
	entry, err := scanTempStock(r.tx.QueryRow(ctx, `SELECT `+tempStockColumns+` FROM temp_stock_entries
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return TempStockEntry{}, fmt.Errorf("temp stock %d: %w", id, shared.ErrNotFound)
	}
	return entry, err
}

func (r *txRepo) UpdateTempStock(ctx context.Context, e TempStockEntry) error {
	_, err := r.tx.Exec(ctx, `UPDATE temp_stock_entries
SET status=$3, resolved_by=$4, resolved_at=$5, resolution_notes=$6, linked_purchase_id=$7
WHERE tenant_id=$1 AND id=$2`,
		e.TenantID, e.ID, string(e.Status), nullInt(e.ResolvedBy), nullTime(e.ResolvedAt), e.ResolutionNotes, nullInt(e.LinkedPurchaseID))
	return err
}

func (r *txRepo) InsertTempStockEvent(ctx context.Context, evt TempStockEvent) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO temp_stock_events (entry_id, event_type, qty, from_status, to_status, linked_purchase_id, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		evt.EntryID, string(evt.Type), evt.Qty, string(evt.FromStatus), string(evt.ToStatus),
		nullInt(evt.LinkedPurchaseID), nullInt(evt.ActorID), evt.At).Scan(&id)
	return id, err
}

// savepoint runs fn in a nested transaction so a unique violation can be
// retried without aborting the outer ledger transaction.
func (r *txRepo) savepoint(ctx context.Context, fn func(pgx.Tx) error) error {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}

// scopeArg keeps an empty scope as an empty array rather than NULL.
func scopeArg(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
