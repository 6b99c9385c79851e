// Package units resolves per-tenant unit-of-measure rules, most importantly
// whether a unit admits fractional quantities (litres) or only whole ones (pieces).
package units

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Unit is a tenant-scoped unit of measure.
type Unit struct {
	TenantID     int64
	Code         string
	Name         string
	AllowDecimal bool
}

// ErrUnitNotFound indicates the unit code is absent from the tenant catalog.
var ErrUnitNotFound = errors.New("units: unit not found")

// Catalog answers the decimal-policy question for a tenant unit.
type Catalog interface {
	AllowsDecimal(ctx context.Context, tenantID int64, unitCode string) (bool, error)
}

var wholeTolerance = decimal.New(1, -6)

// IsWhole reports whether q is integral within a small tolerance.
func IsWhole(q decimal.Decimal) bool {
	abs := q.Abs()
	return abs.Sub(abs.Round(0)).Abs().LessThan(wholeTolerance)
}

// Policy validates quantities against the unit catalog.
type Policy struct {
	catalog Catalog
}

// NewPolicy builds Policy.
func NewPolicy(catalog Catalog) *Policy {
	return &Policy{catalog: catalog}
}

// Permits reports whether qty is acceptable for unitCode. Unknown units are
// treated as whole-unit only.
func (p *Policy) Permits(ctx context.Context, tenantID int64, unitCode string, qty decimal.Decimal) (bool, error) {
	if IsWhole(qty) {
		return true, nil
	}
	if p == nil || p.catalog == nil || unitCode == "" {
		return false, nil
	}
	allow, err := p.catalog.AllowsDecimal(ctx, tenantID, unitCode)
	if err != nil {
		if errors.Is(err, ErrUnitNotFound) {
			return false, nil
		}
		return false, err
	}
	return allow, nil
}
