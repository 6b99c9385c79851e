package inventory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/partsledger/internal/purchasing"
	"github.com/odyssey-erp/partsledger/internal/shared"
	"github.com/odyssey-erp/partsledger/internal/units"
)

type tenantKey struct {
	tenantID int64
	key      BalanceKey
}

type memState struct {
	parts        map[int64]Part
	locations    map[int64]bool
	balances     map[tenantKey]Balance
	movements    []Movement
	movementKeys map[string]bool
	transfers    map[int64]Transfer
	references   map[string]bool
	fingerprints map[string]bool
	temp         map[int64]TempStockEntry
	events       []TempStockEvent
	purchases    []purchasing.Purchase
}

func (s memState) clone() memState {
	return memState{
		parts:        maps.Clone(s.parts),
		locations:    maps.Clone(s.locations),
		balances:     maps.Clone(s.balances),
		movements:    slices.Clone(s.movements),
		movementKeys: maps.Clone(s.movementKeys),
		transfers:    maps.Clone(s.transfers),
		references:   maps.Clone(s.references),
		fingerprints: maps.Clone(s.fingerprints),
		temp:         maps.Clone(s.temp),
		events:       slices.Clone(s.events),
		purchases:    slices.Clone(s.purchases),
	}
}

// memoryRepo serializes whole transactions and restores a snapshot on error,
// which gives the same all-or-nothing visibility as the PostgreSQL store.
type memoryRepo struct {
	mu     sync.Mutex
	state  memState
	nextID int64

	failMovementKey string
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memState{
		parts:        make(map[int64]Part),
		locations:    make(map[int64]bool),
		balances:     make(map[tenantKey]Balance),
		movementKeys: make(map[string]bool),
		transfers:    make(map[int64]Transfer),
		references:   make(map[string]bool),
		fingerprints: make(map[string]bool),
		temp:         make(map[int64]TempStockEntry),
	}}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, tenantID int64, key BalanceKey) (Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.state.balances[tenantKey{tenantID, key}]
	if !ok {
		return Balance{}, fmt.Errorf("balance %s: %w", key, shared.ErrNotFound)
	}
	return bal, nil
}

func (r *memoryRepo) ListBalances(ctx context.Context, tenantID, locationID int64) ([]Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Balance
	for k, b := range r.state.balances {
		if k.tenantID == tenantID && k.key.LocationID == locationID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartID < out[j].PartID })
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Movement
	for i := len(r.state.movements) - 1; i >= 0; i-- {
		m := r.state.movements[i]
		if m.TenantID != filter.TenantID {
			continue
		}
		if filter.LocationID != 0 && m.LocationID != filter.LocationID {
			continue
		}
		if len(filter.LocationIDs) > 0 && !slices.Contains(filter.LocationIDs, m.LocationID) {
			continue
		}
		if filter.PartID != 0 && m.PartID != filter.PartID {
			continue
		}
		matched = append(matched, m)
	}
	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := min(filter.Offset+filter.Limit, total)
	return matched[filter.Offset:end], total, nil
}

func (r *memoryRepo) GetTransfer(ctx context.Context, tenantID, id int64) (Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.transfers[id]
	if !ok || t.TenantID != tenantID {
		return Transfer{}, fmt.Errorf("transfer %d: %w", id, shared.ErrNotFound)
	}
	return t, nil
}

func (r *memoryRepo) GetTempStock(ctx context.Context, tenantID, id int64) (TempStockEntry, []TempStockEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.temp[id]
	if !ok || e.TenantID != tenantID {
		return TempStockEntry{}, nil, fmt.Errorf("temp stock %d: %w", id, shared.ErrNotFound)
	}
	var events []TempStockEvent
	for _, evt := range r.state.events {
		if evt.EntryID == id {
			events = append(events, evt)
		}
	}
	return e, events, nil
}

func (r *memoryRepo) ListTempStock(ctx context.Context, filter TempStockFilter) ([]TempStockEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TempStockEntry
	for _, e := range r.state.temp {
		if e.TenantID != filter.TenantID {
			continue
		}
		if filter.LocationID != 0 && e.LocationID != filter.LocationID {
			continue
		}
		if len(filter.LocationIDs) > 0 && !slices.Contains(filter.LocationIDs, e.LocationID) {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryRepo) ListBalancesAfter(ctx context.Context, cursor BalanceCursor, limit int) ([]Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []Balance
	for _, b := range r.state.balances {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return cursorLess(cursorOf(all[i]), cursorOf(all[j])) })
	var out []Balance
	for _, b := range all {
		if cursorLess(cursor, cursorOf(b)) {
			out = append(out, b)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func cursorOf(b Balance) BalanceCursor {
	return BalanceCursor{TenantID: b.TenantID, LocationID: b.LocationID, PartID: b.PartID}
}

func cursorLess(a, b BalanceCursor) bool {
	if a.TenantID != b.TenantID {
		return a.TenantID < b.TenantID
	}
	if a.LocationID != b.LocationID {
		return a.LocationID < b.LocationID
	}
	return a.PartID < b.PartID
}

func (tx *memoryTx) LockOrInitBalance(ctx context.Context, tenantID int64, key BalanceKey) (decimal.Decimal, error) {
	k := tenantKey{tenantID, key}
	bal, ok := tx.repo.state.balances[k]
	if !ok {
		bal = Balance{TenantID: tenantID, LocationID: key.LocationID, PartID: key.PartID, Qty: decimal.Zero}
		tx.repo.state.balances[k] = bal
	}
	return bal.Qty, nil
}

func (tx *memoryTx) WriteBalance(ctx context.Context, tenantID int64, key BalanceKey, qty decimal.Decimal) error {
	k := tenantKey{tenantID, key}
	bal, ok := tx.repo.state.balances[k]
	if !ok {
		return fmt.Errorf("balance %s not initialised", key)
	}
	bal.Qty = qty
	bal.UpdatedAt = time.Now().UTC()
	tx.repo.state.balances[k] = bal
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	if tx.repo.failMovementKey != "" && tx.repo.failMovementKey == m.IdempotencyKey {
		return 0, fmt.Errorf("connection reset while inserting %s", m.IdempotencyKey)
	}
	if tx.repo.state.movementKeys[m.IdempotencyKey] {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateMovement, m.IdempotencyKey)
	}
	m.ID = tx.repo.id()
	tx.repo.state.movementKeys[m.IdempotencyKey] = true
	tx.repo.state.movements = append(tx.repo.state.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) MovementTotal(ctx context.Context, tenantID int64, key BalanceKey) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, m := range tx.repo.state.movements {
		if m.TenantID == tenantID && m.LocationID == key.LocationID && m.PartID == key.PartID {
			total = total.Add(m.Effect())
		}
	}
	return total, nil
}

func (tx *memoryTx) GetPart(ctx context.Context, tenantID, partID int64) (Part, error) {
	p, ok := tx.repo.state.parts[partID]
	if !ok || p.TenantID != tenantID {
		return Part{}, fmt.Errorf("part %d: %w", partID, shared.ErrNotFound)
	}
	return p, nil
}

func (tx *memoryTx) ActiveLocations(ctx context.Context, tenantID int64, ids ...int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = tx.repo.state.locations[id]
	}
	return out, nil
}

func (tx *memoryTx) OpenPurchase(ctx context.Context, input purchasing.UnassignedInput) (purchasing.Purchase, error) {
	header, _, err := purchasing.BuildUnassigned(input, time.Now().UTC())
	if err != nil {
		return purchasing.Purchase{}, err
	}
	header.ID = tx.repo.id()
	tx.repo.state.purchases = append(tx.repo.state.purchases, header)
	return header, nil
}

func (tx *memoryTx) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	refKey := fmt.Sprintf("%d:%s", t.TenantID, t.Reference)
	if tx.repo.state.references[refKey] {
		return 0, errReferenceTaken
	}
	if tx.repo.state.fingerprints[t.Fingerprint] {
		return 0, fmt.Errorf("%w: transfer fingerprint", ErrDuplicateMovement)
	}
	t.ID = tx.repo.id()
	tx.repo.state.references[refKey] = true
	tx.repo.state.fingerprints[t.Fingerprint] = true
	tx.repo.state.transfers[t.ID] = t
	return t.ID, nil
}

func (tx *memoryTx) InsertTempStock(ctx context.Context, e TempStockEntry) (int64, error) {
	refKey := fmt.Sprintf("%d:%s", e.TenantID, e.Reference)
	if tx.repo.state.references[refKey] {
		return 0, errReferenceTaken
	}
	e.ID = tx.repo.id()
	tx.repo.state.references[refKey] = true
	tx.repo.state.temp[e.ID] = e
	return e.ID, nil
}

func (tx *memoryTx) GetTempStockForUpdate(ctx context.Context, tenantID, id int64) (TempStockEntry, error) {
	e, ok := tx.repo.state.temp[id]
	if !ok || e.TenantID != tenantID {
		return TempStockEntry{}, fmt.Errorf("temp stock %d: %w", id, shared.ErrNotFound)
	}
	return e, nil
}

func (tx *memoryTx) UpdateTempStock(ctx context.Context, e TempStockEntry) error {
	if _, ok := tx.repo.state.temp[e.ID]; !ok {
		return fmt.Errorf("temp stock %d missing", e.ID)
	}
	tx.repo.state.temp[e.ID] = e
	return nil
}

func (tx *memoryTx) InsertTempStockEvent(ctx context.Context, evt TempStockEvent) (int64, error) {
	evt.ID = tx.repo.id()
	tx.repo.state.events = append(tx.repo.state.events, evt)
	return evt.ID, nil
}

// seed sets an opening balance together with its OPENING movement.
func (r *memoryRepo) seed(tenantID int64, key BalanceKey, qty string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := decimal.RequireFromString(qty)
	r.state.balances[tenantKey{tenantID, key}] = Balance{TenantID: tenantID, LocationID: key.LocationID, PartID: key.PartID, Qty: q}
	m := Movement{
		ID:             r.id(),
		TenantID:       tenantID,
		LocationID:     key.LocationID,
		PartID:         key.PartID,
		Kind:           MovementAdjust,
		Qty:            q,
		RefKind:        RefOpening,
		IdempotencyKey: fmt.Sprintf("opening-%d-%s", tenantID, key),
		PostedAt:       time.Now().UTC(),
	}
	r.state.movementKeys[m.IdempotencyKey] = true
	r.state.movements = append(r.state.movements, m)
}

func (r *memoryRepo) balance(tenantID int64, key BalanceKey) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.balances[tenantKey{tenantID, key}].Qty
}

func (r *memoryRepo) movementsFor(key BalanceKey) []Movement {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for _, m := range r.state.movements {
		if m.LocationID == key.LocationID && m.PartID == key.PartID && m.RefKind != RefOpening {
			out = append(out, m)
		}
	}
	return out
}

func (r *memoryRepo) snapshot() memState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *memoryRepo) takeReference(tenantID int64, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.references[fmt.Sprintf("%d:%s", tenantID, ref)] = true
}

type stubCatalog map[string]bool

func (c stubCatalog) AllowsDecimal(ctx context.Context, tenantID int64, unitCode string) (bool, error) {
	allow, ok := c[unitCode]
	if !ok {
		return false, units.ErrUnitNotFound
	}
	return allow, nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

func (a *memoryAudit) last() shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logs[len(a.logs)-1]
}

type memoryMetrics struct {
	mu       sync.Mutex
	posted   map[string]int
	failures map[string]int
	drift    int
}

func (m *memoryMetrics) MovementPosted(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted[kind]++
}

func (m *memoryMetrics) WorkflowFailed(workflow, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[workflow+":"+reason]++
}

func (m *memoryMetrics) ReconcileDrift(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drift = count
}

type memoryNotifier struct {
	mu     sync.Mutex
	events []BalanceChangedEvent
}

func (n *memoryNotifier) HandleBalanceChanged(ctx context.Context, evt BalanceChangedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

const (
	testTenant   int64 = 1
	partFilter   int64 = 10
	partOil      int64 = 11
	garageNorth  int64 = 1
	garageSouth  int64 = 2
	garageClosed int64 = 3
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	actor    shared.Actor
	svc      *Service
	repo     *memoryRepo
	tokens   *shared.ActionTokenStore
	redis    *miniredis.Miniredis
	audit    *memoryAudit
	metrics  *memoryMetrics
	notifier *memoryNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	repo.state.locations[garageNorth] = true
	repo.state.locations[garageSouth] = true
	repo.state.locations[garageClosed] = false
	repo.state.parts[partFilter] = Part{
		ID: partFilter, TenantID: testTenant, SKU: "FLT-01", Name: "Oil filter", UnitCode: "PCS",
		UnitCost: decimal.RequireFromString("25.10"), TaxRate: decimal.NewFromInt(18),
	}
	repo.state.parts[partOil] = Part{
		ID: partOil, TenantID: testTenant, SKU: "OIL-5W30", Name: "Engine oil", UnitCode: "LTR",
		UnitCost: decimal.RequireFromString("9.40"), TaxRate: decimal.NewFromInt(18),
	}

	f := &fixture{
		actor: shared.Actor{
			ID:          9,
			TenantID:    testTenant,
			SessionID:   "sess-1",
			Permissions: []string{shared.PermInventoryView, shared.PermInventoryEdit, shared.PermTempStock},
		},
		repo:     repo,
		tokens:   shared.NewActionTokenStore(client, time.Minute),
		redis:    mr,
		audit:    &memoryAudit{},
		metrics:  &memoryMetrics{posted: map[string]int{}, failures: map[string]int{}},
		notifier: &memoryNotifier{},
	}
	f.ctx = shared.ContextWithActor(context.Background(), f.actor)
	f.svc = NewService(repo, f.audit, f.tokens, units.NewPolicy(stubCatalog{"PCS": false, "LTR": true}),
		ServiceConfig{Now: func() time.Time { return fixedNow }, Metrics: f.metrics}, f.notifier)
	return f
}

func (f *fixture) token(t *testing.T, action string) string {
	t.Helper()
	token, err := f.tokens.Issue(f.ctx, f.actor.TokenScope(), action)
	require.NoError(t, err)
	return token
}

// as returns a context for the same actor with extra permissions or scope.
func (f *fixture) as(actor shared.Actor) context.Context {
	return shared.ContextWithActor(context.Background(), actor)
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireQty(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, qty(want).Equal(got), "want %s, got %s", want, got)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
