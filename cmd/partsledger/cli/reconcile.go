// Package cli holds the operator subcommands of the partsledger binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/odyssey-erp/partsledger/internal/inventory"
)

// Reconciler checks balances against their movement history.
type Reconciler interface {
	ReconcilePair(ctx context.Context, tenantID int64, key inventory.BalanceKey) (*inventory.Drift, error)
	ReconcileAll(ctx context.Context, batch int) ([]inventory.Drift, error)
}

// Exit codes returned by ReconcileCommand.
const (
	ExitOK    = 0
	ExitError = 1
	ExitDrift = 2
)

// ReconcileOptions configures one reconcile run. A zero TenantID walks every balance.
type ReconcileOptions struct {
	TenantID   int64
	LocationID int64
	PartID     int64
	Batch      int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary is the structured outcome of a run.
type ReconcileSummary struct {
	Scope  string      `json:"scope"`
	Drifts []DriftLine `json:"drifts"`
}

// DriftLine describes one balance that does not match its movements.
type DriftLine struct {
	TenantID    int64  `json:"tenant_id"`
	LocationID  int64  `json:"location_id"`
	PartID      int64  `json:"part_id"`
	Balance     string `json:"balance"`
	LedgerTotal string `json:"ledger_total"`
	Difference  string `json:"difference"`
}

// ReconcileCLI runs reconciliation in-process.
type ReconcileCLI struct {
	service Reconciler
}

// NewReconcileCLI constructs the helper.
func NewReconcileCLI(service Reconciler) (*ReconcileCLI, error) {
	if service == nil {
		return nil, errors.New("reconcile cli: service required")
	}
	return &ReconcileCLI{service: service}, nil
}

// ReconcileCommand runs the check and reports drift. It returns ExitDrift when
// any balance disagrees with its movements.
func (c *ReconcileCLI) ReconcileCommand(ctx context.Context, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	summary, err := c.run(ctx, opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
		return ExitError
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "reconcile: encode: %v\n", err)
			return ExitError
		}
	} else {
		fmt.Fprintf(opts.Stdout, "Scope: %s\n", summary.Scope)
		if len(summary.Drifts) == 0 {
			fmt.Fprintln(opts.Stdout, "All balances reconcile.")
		}
		for _, d := range summary.Drifts {
			fmt.Fprintf(opts.Stdout, "tenant %d location %d part %d: balance %s ledger %s (diff %s)\n",
				d.TenantID, d.LocationID, d.PartID, d.Balance, d.LedgerTotal, d.Difference)
		}
	}
	if len(summary.Drifts) > 0 {
		return ExitDrift
	}
	return ExitOK
}

func (c *ReconcileCLI) run(ctx context.Context, opts ReconcileOptions) (ReconcileSummary, error) {
	summary := ReconcileSummary{Scope: "all", Drifts: []DriftLine{}}
	if opts.TenantID == 0 {
		if opts.LocationID != 0 || opts.PartID != 0 {
			return summary, errors.New("tenant is required when location or part is given")
		}
		drifts, err := c.service.ReconcileAll(ctx, opts.Batch)
		if err != nil {
			return summary, err
		}
		for _, d := range drifts {
			summary.Drifts = append(summary.Drifts, driftLine(d))
		}
		return summary, nil
	}
	if opts.LocationID <= 0 || opts.PartID <= 0 {
		return summary, errors.New("location and part are required for a single pair")
	}
	key := inventory.BalanceKey{LocationID: opts.LocationID, PartID: opts.PartID}
	summary.Scope = fmt.Sprintf("tenant %d pair %s", opts.TenantID, key)
	drift, err := c.service.ReconcilePair(ctx, opts.TenantID, key)
	if err != nil {
		return summary, err
	}
	if drift != nil {
		summary.Drifts = append(summary.Drifts, driftLine(*drift))
	}
	return summary, nil
}

func driftLine(d inventory.Drift) DriftLine {
	return DriftLine{
		TenantID:    d.TenantID,
		LocationID:  d.Key.LocationID,
		PartID:      d.Key.PartID,
		Balance:     d.Balance.String(),
		LedgerTotal: d.LedgerTotal.String(),
		Difference:  d.Difference().String(),
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
