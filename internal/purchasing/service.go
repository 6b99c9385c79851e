package purchasing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Amounts groups the monetary figures of a purchase line.
type Amounts struct {
	Taxable decimal.Decimal
	Tax     decimal.Decimal
	Total   decimal.Decimal
}

// ComputeAmounts derives taxable, tax and total rounded to cents.
func ComputeAmounts(qty, unitCost, taxRate decimal.Decimal) Amounts {
	taxable := qty.Mul(unitCost).Round(2)
	tax := taxable.Mul(taxRate).Div(hundred).Round(2)
	return Amounts{Taxable: taxable, Tax: tax, Total: taxable.Add(tax)}
}

// BuildUnassigned validates input and prepares the header and line rows.
func BuildUnassigned(input UnassignedInput, now time.Time) (Purchase, Line, error) {
	if input.TenantID == 0 || input.LocationID == 0 || input.PartID == 0 {
		return Purchase{}, Line{}, fmt.Errorf("%w: tenant, location and part required", ErrValidation)
	}
	if !input.Quantity.IsPositive() {
		return Purchase{}, Line{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if input.UnitCost.IsNegative() || input.TaxRate.IsNegative() {
		return Purchase{}, Line{}, fmt.Errorf("%w: cost and tax rate must be >= 0", ErrValidation)
	}
	if input.Source == "" {
		return Purchase{}, Line{}, fmt.Errorf("%w: source required", ErrValidation)
	}
	amounts := ComputeAmounts(input.Quantity, input.UnitCost, input.TaxRate)
	header := Purchase{
		TenantID:      input.TenantID,
		LocationID:    input.LocationID,
		Number:        generateNumber("PUR", now),
		Status:        StatusDraft,
		PaymentStatus: PaymentUnpaid,
		Source:        input.Source,
		Notes:         input.Notes,
		Taxable:       amounts.Taxable,
		Tax:           amounts.Tax,
		Total:         amounts.Total,
		CreatedBy:     input.ActorID,
		CreatedAt:     now,
	}
	line := Line{
		PartID:   input.PartID,
		Qty:      input.Quantity,
		UnitCost: input.UnitCost,
		TaxRate:  input.TaxRate,
		Taxable:  amounts.Taxable,
		Tax:      amounts.Tax,
		Total:    amounts.Total,
	}
	return header, line, nil
}

func generateNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, now.UnixNano())
}
