package inventory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/odyssey-erp/partsledger/internal/purchasing"
	"github.com/odyssey-erp/partsledger/internal/shared"
)

// OpenTempStock records stock received on trial. Owned balances are untouched.
func (s *Service) OpenTempStock(ctx context.Context, input TempStockInput) (TempStockResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return TempStockResult{}, err
	}
	entity := BalanceKey{LocationID: input.LocationID, PartID: input.PartID}.String()
	if err := validateTempStock(actor, input); err != nil {
		return TempStockResult{}, s.fail(ctx, actor, WorkflowTempStockIn, entity, err)
	}
	if err := s.consumeToken(ctx, actor, ActionTempStockIn, input.Token); err != nil {
		return TempStockResult{}, s.fail(ctx, actor, WorkflowTempStockIn, entity, err)
	}

	now := s.now()
	var result TempStockResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireActive(ctx, tx, actor.TenantID, input.LocationID); err != nil {
			return err
		}
		part, err := tx.GetPart(ctx, actor.TenantID, input.PartID)
		if err != nil {
			return err
		}
		if err := s.checkQuantity(ctx, actor.TenantID, part, input.Quantity); err != nil {
			return err
		}
		entry := TempStockEntry{
			TenantID:   actor.TenantID,
			LocationID: input.LocationID,
			PartID:     input.PartID,
			Qty:        input.Quantity,
			Status:     TempStockOpen,
			Notes:      input.Notes,
			CreatedBy:  actor.ID,
			CreatedAt:  now,
		}
		id, ref, err := s.withReference(ctx, "TMP", now, func(ref string) (int64, error) {
			entry.Reference = ref
			return tx.InsertTempStock(ctx, entry)
		})
		if err != nil {
			return err
		}
		entry.ID, entry.Reference = id, ref
		event := TempStockEvent{
			EntryID:  id,
			Type:     EventTempIn,
			Qty:      entry.Qty,
			ToStatus: TempStockOpen,
			ActorID:  actor.ID,
			At:       now,
		}
		if event.ID, err = tx.InsertTempStockEvent(ctx, event); err != nil {
			return err
		}
		result = TempStockResult{Entry: entry, Event: event}
		return nil
	})
	if err != nil {
		return TempStockResult{}, s.fail(ctx, actor, WorkflowTempStockIn, entity, classify("open temp stock", err))
	}
	s.record(ctx, actor, string(EventTempIn), result.Entry.Reference,
		fmt.Sprintf("Temporary stock %s of part %d received at location %d", input.Quantity.String(), input.PartID, input.LocationID),
		nil,
		map[string]any{"status": string(TempStockOpen), "qty": input.Quantity.String()},
		map[string]any{"entry_id": result.Entry.ID})
	return result, nil
}

// ResolveTempStock moves an OPEN entry to RETURNED, CONSUMED or PURCHASED.
// Only PURCHASED touches the ledger.
func (s *Service) ResolveTempStock(ctx context.Context, input ResolveTempStockInput) (TempStockResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return TempStockResult{}, err
	}
	entity := strconv.FormatInt(input.EntryID, 10)
	if err := validateResolution(input); err != nil {
		return TempStockResult{}, s.fail(ctx, actor, WorkflowTempResolve, entity, err)
	}
	if err := s.consumeToken(ctx, actor, ResolveTempStockAction(input.EntryID), input.Token); err != nil {
		return TempStockResult{}, s.fail(ctx, actor, WorkflowTempResolve, entity, err)
	}

	now := s.now()
	var result TempStockResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := s.lockEntry(ctx, tx, actor, input.EntryID)
		if err != nil {
			return err
		}
		if entry.Status != TempStockOpen {
			return &StateError{EntryID: entry.ID, Current: entry.Status, Message: "This temporary stock entry was already resolved."}
		}

		if input.Resolution == TempStockPurchased {
			if err := requireActive(ctx, tx, actor.TenantID, entry.LocationID); err != nil {
				return err
			}
			part, err := tx.GetPart(ctx, actor.TenantID, entry.PartID)
			if err != nil {
				return err
			}
			if err := s.checkQuantity(ctx, actor.TenantID, part, entry.Qty); err != nil {
				return err
			}
			lt := newLedgerTx(tx, actor.TenantID)
			handles, err := lt.lock(ctx, BalanceKey{LocationID: entry.LocationID, PartID: entry.PartID})
			if err != nil {
				return err
			}
			purchase, err := tx.OpenPurchase(ctx, purchasing.UnassignedInput{
				TenantID:   actor.TenantID,
				LocationID: entry.LocationID,
				PartID:     entry.PartID,
				Quantity:   entry.Qty,
				UnitCost:   part.UnitCost,
				TaxRate:    part.TaxRate,
				Source:     purchasing.SourceTempStock,
				Notes:      fmt.Sprintf("Converted from temporary stock %s", entry.Reference),
				ActorID:    actor.ID,
			})
			if err != nil {
				return fmt.Errorf("open purchase: %w", err)
			}
			movement, err := lt.applyMovement(ctx, handles[0], Movement{
				Kind:           MovementIn,
				Qty:            entry.Qty,
				RefKind:        RefPurchase,
				RefID:          purchase.ID,
				IdempotencyKey: fmt.Sprintf("temp-stock-%d-purchased", entry.ID),
				Notes:          input.Notes,
				ActorID:        actor.ID,
				PostedAt:       now,
			})
			if err != nil {
				return err
			}
			balance := handles[0].Quantity()
			entry.LinkedPurchaseID = purchase.ID
			result.PurchaseID = purchase.ID
			result.Movement = &movement
			result.Balance = &balance
		}

		entry.Status = input.Resolution
		entry.ResolvedBy = actor.ID
		entry.ResolvedAt = now
		entry.ResolutionNotes = input.Notes
		if err := tx.UpdateTempStock(ctx, entry); err != nil {
			return err
		}
		event := TempStockEvent{
			EntryID:          entry.ID,
			Type:             resolutionEvents[input.Resolution],
			Qty:              entry.Qty,
			FromStatus:       TempStockOpen,
			ToStatus:         input.Resolution,
			LinkedPurchaseID: entry.LinkedPurchaseID,
			ActorID:          actor.ID,
			At:               now,
		}
		if event.ID, err = tx.InsertTempStockEvent(ctx, event); err != nil {
			return err
		}
		result.Entry, result.Event = entry, event
		return nil
	})
	if err != nil {
		return TempStockResult{}, s.fail(ctx, actor, WorkflowTempResolve, entity, classify("resolve temp stock", err))
	}

	entry := result.Entry
	s.record(ctx, actor, string(result.Event.Type), entry.Reference,
		fmt.Sprintf("Temporary stock %s resolved as %s", entry.Reference, entry.Status),
		map[string]any{"status": string(TempStockOpen)},
		map[string]any{"status": string(entry.Status), "linked_purchase_id": entry.LinkedPurchaseID},
		map[string]any{"entry_id": entry.ID, "qty": entry.Qty.String()})
	if result.Movement != nil {
		s.recordMovements(*result.Movement)
		s.notify(ctx, BalanceChangedEvent{
			TenantID:   actor.TenantID,
			LocationID: entry.LocationID,
			PartID:     entry.PartID,
			Qty:        *result.Balance,
			Workflow:   WorkflowTempResolve,
			Reference:  entry.Reference,
			At:         now,
		})
	}
	return result, nil
}

// LinkConsumedToPurchase attaches a paper-trail purchase to a CONSUMED entry.
// No movement is posted: the stock was written off when it was consumed.
func (s *Service) LinkConsumedToPurchase(ctx context.Context, input LinkPurchaseInput) (TempStockResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return TempStockResult{}, err
	}
	entity := strconv.FormatInt(input.EntryID, 10)
	if input.EntryID <= 0 {
		return TempStockResult{}, s.fail(ctx, actor, WorkflowTempLink, entity, invalid("entry_id", "Temporary stock entry is required."))
	}
	if err := s.consumeToken(ctx, actor, LinkTempStockAction(input.EntryID), input.Token); err != nil {
		return TempStockResult{}, s.fail(ctx, actor, WorkflowTempLink, entity, err)
	}

	now := s.now()
	var result TempStockResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := s.lockEntry(ctx, tx, actor, input.EntryID)
		if err != nil {
			return err
		}
		if entry.Status != TempStockConsumed {
			return &StateError{EntryID: entry.ID, Current: entry.Status, Message: "Only consumed temporary stock can be linked to a purchase."}
		}
		if entry.LinkedPurchaseID != 0 {
			return &StateError{EntryID: entry.ID, Current: entry.Status, Message: "This entry is already linked to a purchase."}
		}
		part, err := tx.GetPart(ctx, actor.TenantID, entry.PartID)
		if err != nil {
			return err
		}
		purchase, err := tx.OpenPurchase(ctx, purchasing.UnassignedInput{
			TenantID:   actor.TenantID,
			LocationID: entry.LocationID,
			PartID:     entry.PartID,
			Quantity:   entry.Qty,
			UnitCost:   part.UnitCost,
			TaxRate:    part.TaxRate,
			Source:     purchasing.SourceTempStockConsumed,
			Notes:      fmt.Sprintf("Consumed temporary stock %s", entry.Reference),
			ActorID:    actor.ID,
		})
		if err != nil {
			return fmt.Errorf("open purchase: %w", err)
		}
		entry.LinkedPurchaseID = purchase.ID
		if err := tx.UpdateTempStock(ctx, entry); err != nil {
			return err
		}
		event := TempStockEvent{
			EntryID:          entry.ID,
			Type:             EventPurchaseLinked,
			Qty:              entry.Qty,
			FromStatus:       TempStockConsumed,
			ToStatus:         TempStockConsumed,
			LinkedPurchaseID: purchase.ID,
			ActorID:          actor.ID,
			At:               now,
		}
		if event.ID, err = tx.InsertTempStockEvent(ctx, event); err != nil {
			return err
		}
		result = TempStockResult{Entry: entry, Event: event, PurchaseID: purchase.ID}
		return nil
	})
	if err != nil {
		return TempStockResult{}, s.fail(ctx, actor, WorkflowTempLink, entity, classify("link temp stock purchase", err))
	}
	s.record(ctx, actor, string(EventPurchaseLinked), result.Entry.Reference,
		fmt.Sprintf("Consumed temporary stock %s linked to purchase %d", result.Entry.Reference, result.PurchaseID),
		map[string]any{"linked_purchase_id": nil},
		map[string]any{"linked_purchase_id": result.PurchaseID},
		map[string]any{"entry_id": result.Entry.ID})
	return result, nil
}

// GetTempStock loads an entry with its event trail.
func (s *Service) GetTempStock(ctx context.Context, id int64) (TempStockEntry, []TempStockEvent, error) {
	actor, err := s.reader(ctx)
	if err != nil {
		return TempStockEntry{}, nil, err
	}
	entry, events, err := s.repo.GetTempStock(ctx, actor.TenantID, id)
	if err != nil {
		return TempStockEntry{}, nil, classify("get temp stock", err)
	}
	if !actor.InScope(entry.LocationID) {
		return TempStockEntry{}, nil, fmt.Errorf("inventory: temp stock %d: %w", id, shared.ErrNotFound)
	}
	return entry, events, nil
}

// ListTempStock lists entries, optionally by location and status.
func (s *Service) ListTempStock(ctx context.Context, filter TempStockFilter) ([]TempStockEntry, error) {
	actor, err := s.reader(ctx, filter.LocationID)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && filter.Status != TempStockOpen && !filter.Status.IsResolution() {
		return nil, invalid("status", "Unknown temporary stock status %q.", filter.Status)
	}
	filter.TenantID = actor.TenantID
	filter.LocationIDs = nil
	if filter.LocationID == 0 && len(actor.Locations) > 0 {
		filter.LocationIDs = actor.Locations
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	entries, err := s.repo.ListTempStock(ctx, filter)
	if err != nil {
		return nil, classify("list temp stock", err)
	}
	return entries, nil
}

func (s *Service) lockEntry(ctx context.Context, tx TxRepository, actor shared.Actor, id int64) (TempStockEntry, error) {
	entry, err := tx.GetTempStockForUpdate(ctx, actor.TenantID, id)
	if err != nil {
		return TempStockEntry{}, err
	}
	if !actor.InScope(entry.LocationID) {
		return TempStockEntry{}, fmt.Errorf("inventory: temp stock %d: %w", id, shared.ErrForbidden)
	}
	return entry, nil
}

func validateTempStock(actor shared.Actor, input TempStockInput) error {
	if input.LocationID <= 0 {
		return invalid("location_id", "Location is required.")
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
	if !actor.InScope(input.LocationID) {
		return fmt.Errorf("inventory: location %d: %w", input.LocationID, shared.ErrForbidden)
	}
	return nil
}

func validateResolution(input ResolveTempStockInput) error {
	if input.EntryID <= 0 {
		return invalid("entry_id", "Temporary stock entry is required.")
	}
	if !input.Resolution.IsResolution() {
		return invalid("resolution", "Resolution must be RETURNED, PURCHASED or CONSUMED.")
	}
	if input.Resolution == TempStockConsumed && !input.ConfirmConsumed {
		return &StateError{EntryID: input.EntryID, Message: "Confirm that the stock was consumed; this cannot be undone."}
	}
	return nil
}
