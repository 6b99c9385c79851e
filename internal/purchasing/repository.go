package purchasing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/partsledger/internal/shared"
)

const (
	constraintPurchaseNumber = "purchases_tenant_number_key"
	numberAttempts           = 5
)

// TxWriter opens purchases inside a transaction owned by the caller, so the
// purchase commits or rolls back together with the stock movement it explains.
type TxWriter struct {
	tx pgx.Tx
}

// NewTxWriter binds a writer to tx.
func NewTxWriter(tx pgx.Tx) *TxWriter {
	return &TxWriter{tx: tx}
}

// OpenUnassigned inserts one DRAFT/UNPAID header and its single line.
func (w *TxWriter) OpenUnassigned(ctx context.Context, input UnassignedInput) (Purchase, error) {
	header, line, err := BuildUnassigned(input, time.Now().UTC())
	if err != nil {
		return Purchase{}, err
	}
	header.Number, err = withNumber(header.Number, func(number string) error {
		sp, err := w.tx.Begin(ctx)
		if err != nil {
			return err
		}
		err = sp.QueryRow(ctx, `INSERT INTO purchases (tenant_id, location_id, number, vendor_id, invoice_number, status, payment_status, source, notes, taxable_amount, tax_amount, total_amount, created_by, created_at)
VALUES ($1,$2,$3,NULL,NULL,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
			header.TenantID, header.LocationID, number, string(header.Status), string(header.PaymentStatus), string(header.Source),
			header.Notes, header.Taxable, header.Tax, header.Total, nullInt(header.CreatedBy), header.CreatedAt).Scan(&header.ID)
		if err != nil {
			_ = sp.Rollback(ctx)
			return err
		}
		return sp.Commit(ctx)
	})
	if err != nil {
		return Purchase{}, fmt.Errorf("purchasing: insert header: %w", err)
	}
	line.PurchaseID = header.ID
	err = w.tx.QueryRow(ctx, `INSERT INTO purchase_lines (purchase_id, part_id, qty, unit_cost, tax_rate, taxable_amount, tax_amount, total_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		line.PurchaseID, line.PartID, line.Qty, line.UnitCost, line.TaxRate, line.Taxable, line.Tax, line.Total).Scan(&line.ID)
	if err != nil {
		return Purchase{}, fmt.Errorf("purchasing: insert line: %w", err)
	}
	return header, nil
}

// withNumber tries base, then suffixed variants, then a random suffix, until
// insert stops reporting a purchase number collision. insert must leave the
// transaction usable after a collision.
func withNumber(base string, insert func(number string) error) (string, error) {
	for attempt := 1; attempt <= numberAttempts; attempt++ {
		number := base
		if attempt > 1 {
			number = fmt.Sprintf("%s-%d", base, attempt)
		}
		err := insert(number)
		if err == nil {
			return number, nil
		}
		if !shared.IsUniqueViolation(err, constraintPurchaseNumber) {
			return "", err
		}
	}
	number := base + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	err := insert(number)
	if shared.IsUniqueViolation(err, constraintPurchaseNumber) {
		return "", fmt.Errorf("%w: %s", ErrNumberExhausted, number)
	}
	if err != nil {
		return "", err
	}
	return number, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
