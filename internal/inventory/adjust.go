// Package inventory is the FIFO adjustment engine. It is the ONLY package
// allowed to change inventory_items.stock_quantity or
// inventory_lots.remaining_quantity; a guardrail test enforces this.
// Every change writes exactly one row to the inventory_adjustments ledger,
// so the ledger is always the truth and the cached stock is derivable.
//
// All functions take the caller's *sql.Tx: the engine never commits, the
// caller owns the transaction boundary (same discipline the checkout flow
// uses for stock + payment).
package inventory

import (
	"database/sql"
	"fmt"
	"time"
)

// Valid change_type values for the ledger.
const (
	ChangeRestock    = "restock"
	ChangeConsume    = "consume"
	ChangeSpoil      = "spoil"
	ChangeTrash      = "trash"
	ChangeRecount    = "recount"
	ChangeBatchYield = "batch_yield"
)

// Shortage describes one item we could not fully consume.
type Shortage struct {
	ItemID    int64   `json:"itemId"`
	ItemName  string  `json:"itemName"`
	Required  float64 `json:"required"`
	Available float64 `json:"available"`
}

// ShortageError aborts the whole transaction when any item is short.
// Handlers surface it as a 409 with the per-item list.
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	if len(e.Shortages) == 1 {
		s := e.Shortages[0]
		return fmt.Sprintf("not enough stock for item %d: need %.4f, have %.4f", s.ItemID, s.Required, s.Available)
	}
	return fmt.Sprintf("not enough stock for %d items", len(e.Shortages))
}

// Consumption records how much was drained from which lot.
type Consumption struct {
	LotID    int64
	Quantity float64
	UnitCost float64
}

// lockItem locks the item row and returns its current cached stock and name.
// Locking the item first serializes all adjustments for one item, which is
// what keeps the cached stock and the lot remainders in step.
func lockItem(tx *sql.Tx, orgID, itemID int64) (stock float64, name string, err error) {
	query := `
		SELECT stock_quantity, name
		FROM inventory_items
		WHERE id = ? AND org_id = ? AND is_archived = FALSE
		FOR UPDATE`
	err = tx.QueryRow(query, itemID, orgID).Scan(&stock, &name)
	return stock, name, err
}

// addLedgerRow appends one inventory_adjustments row.
func addLedgerRow(tx *sql.Tx, orgID, itemID int64, lotID, batchID *int64, changeType string, delta, after float64, fifoRef, notes string, actorID int64) error {
	query := `
		INSERT INTO inventory_adjustments
		(org_id, item_id, lot_id, batch_id, change_type, quantity_delta, quantity_after, fifo_reference_id, notes, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.Exec(query, orgID, itemID, lotID, batchID, changeType, delta, after, fifoRef, notes, actorID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to append adjustment ledger row: %w", err)
	}
	return nil
}

// ConsumeParams describes one FIFO consumption request.
type ConsumeParams struct {
	OrgID      int64
	ItemID     int64
	Quantity   float64
	ChangeType string // ChangeConsume, ChangeSpoil or ChangeTrash
	BatchID    *int64
	FIFORef    string
	Notes      string
	ActorID    int64
}

// Consume drains `Quantity` from the item's lots, oldest received_at first,
// inside the caller's transaction. It returns one Consumption per lot
// touched. If the item's total remaining is short, it returns a
// *ShortageError and the caller must roll back.
func Consume(tx *sql.Tx, p ConsumeParams) ([]Consumption, error) {
	if p.Quantity <= 0 {
		return nil, fmt.Errorf("consume quantity must be positive, got %v", p.Quantity)
	}
	if p.ChangeType == "" {
		p.ChangeType = ChangeConsume
	}

	// 1. --- Lock the item row ---
	stock, name, err := lockItem(tx, p.OrgID, p.ItemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("inventory item %d not found", p.ItemID)
		}
		return nil, err
	}

	// 2. --- Cheap shortage check against the cached roll-up ---
	if stock < p.Quantity {
		return nil, &ShortageError{Shortages: []Shortage{{
			ItemID:    p.ItemID,
			ItemName:  name,
			Required:  p.Quantity,
			Available: stock,
		}}}
	}

	// 3. --- Lock the open lots in FIFO order ---
	lotQuery := `
		SELECT id, remaining_quantity, unit_cost
		FROM inventory_lots
		WHERE item_id = ? AND remaining_quantity > 0
		ORDER BY received_at ASC, id ASC
		FOR UPDATE`
	rows, err := tx.Query(lotQuery, p.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock lots: %w", err)
	}
	defer rows.Close()

	type openLot struct {
		id        int64
		remaining float64
		unitCost  float64
	}
	var lots []openLot
	var available float64
	for rows.Next() {
		var l openLot
		if err := rows.Scan(&l.id, &l.remaining, &l.unitCost); err != nil {
			return nil, err
		}
		available += l.remaining
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The lots are the source of truth; if the cache was optimistic, the
	// lot total still decides.
	if available < p.Quantity {
		return nil, &ShortageError{Shortages: []Shortage{{
			ItemID:    p.ItemID,
			ItemName:  name,
			Required:  p.Quantity,
			Available: available,
		}}}
	}

	// 4. --- Drain oldest-first ---
	remainingToTake := p.Quantity
	runningStock := stock
	var consumptions []Consumption

	for _, lot := range lots {
		if remainingToTake <= 0 {
			break
		}
		take := lot.remaining
		if take > remainingToTake {
			take = remainingToTake
		}

		_, err := tx.Exec("UPDATE inventory_lots SET remaining_quantity = remaining_quantity - ? WHERE id = ?", take, lot.id)
		if err != nil {
			return nil, fmt.Errorf("failed to drain lot %d: %w", lot.id, err)
		}

		runningStock -= take
		lotID := lot.id
		if err := addLedgerRow(tx, p.OrgID, p.ItemID, &lotID, p.BatchID, p.ChangeType, -take, runningStock, p.FIFORef, p.Notes, p.ActorID); err != nil {
			return nil, err
		}

		consumptions = append(consumptions, Consumption{LotID: lot.id, Quantity: take, UnitCost: lot.unitCost})
		remainingToTake -= take
	}

	// 5. --- Refresh the cached roll-up ---
	_, err = tx.Exec("UPDATE inventory_items SET stock_quantity = stock_quantity - ?, updated_at = ? WHERE id = ?", p.Quantity, time.Now(), p.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to update cached stock: %w", err)
	}

	return consumptions, nil
}

// RestockParams describes an incoming receipt of stock.
type RestockParams struct {
	OrgID         int64
	ItemID        int64
	LotCode       string
	Quantity      float64
	UnitCost      float64
	ReceivedAt    time.Time
	ExpiresAt     *time.Time
	SourceBatchID *int64
	ChangeType    string // ChangeRestock or ChangeBatchYield
	FIFORef       string
	Notes         string
	ActorID       int64
}

// Restock creates a new lot for the item and the matching ledger row.
// Returns the new lot's ID.
func Restock(tx *sql.Tx, p RestockParams) (int64, error) {
	if p.Quantity <= 0 {
		return 0, fmt.Errorf("restock quantity must be positive, got %v", p.Quantity)
	}
	if p.ChangeType == "" {
		p.ChangeType = ChangeRestock
	}

	// 1. --- Lock the item row ---
	stock, _, err := lockItem(tx, p.OrgID, p.ItemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("inventory item %d not found", p.ItemID)
		}
		return 0, err
	}

	// 2. --- Create the lot ---
	receivedAt := p.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	lotQuery := `
		INSERT INTO inventory_lots
		(org_id, item_id, lot_code, original_quantity, remaining_quantity, unit_cost, received_at, expires_at, source_batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.Exec(lotQuery, p.OrgID, p.ItemID, p.LotCode, p.Quantity, p.Quantity, p.UnitCost, receivedAt, p.ExpiresAt, p.SourceBatchID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to create lot: %w", err)
	}
	lotID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	// 3. --- Ledger row + cached roll-up ---
	if err := addLedgerRow(tx, p.OrgID, p.ItemID, &lotID, p.SourceBatchID, p.ChangeType, p.Quantity, stock+p.Quantity, p.FIFORef, p.Notes, p.ActorID); err != nil {
		return 0, err
	}
	_, err = tx.Exec("UPDATE inventory_items SET stock_quantity = stock_quantity + ?, updated_at = ? WHERE id = ?", p.Quantity, time.Now(), p.ItemID)
	if err != nil {
		return 0, fmt.Errorf("failed to update cached stock: %w", err)
	}

	return lotID, nil
}

// RecountParams trues the item up against a physically counted figure.
type RecountParams struct {
	OrgID   int64
	ItemID  int64
	Counted float64
	FIFORef string
	Notes   string
	ActorID int64
}

// Recount reconciles the cached stock with a physical count. A deficit is
// drained FIFO (the oldest stock is the most likely to have evaporated);
// a surplus becomes a correction lot so FIFO ordering stays intact.
// Unlike Consume, a recount can never be short: the count is the truth,
// so when the lots hold less than the cache claimed, whatever they hold is
// drained and the unbacked remainder is written off as pure cache drift.
func Recount(tx *sql.Tx, p RecountParams) (float64, error) {
	if p.Counted < 0 {
		return 0, fmt.Errorf("counted quantity cannot be negative, got %v", p.Counted)
	}

	stock, _, err := lockItem(tx, p.OrgID, p.ItemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("inventory item %d not found", p.ItemID)
		}
		return 0, err
	}

	delta := p.Counted - stock
	switch {
	case delta == 0:
		return 0, nil

	case delta < 0:
		return delta, recountDeficit(tx, p, stock, -delta)

	default:
		_, err := Restock(tx, RestockParams{
			OrgID:      p.OrgID,
			ItemID:     p.ItemID,
			LotCode:    fmt.Sprintf("RECOUNT-%s", time.Now().Format("20060102")),
			Quantity:   delta,
			ChangeType: ChangeRecount,
			FIFORef:    p.FIFORef,
			Notes:      p.Notes,
			ActorID:    p.ActorID,
		})
		return delta, err
	}
}

// recountDeficit drains `need` from the item's lots oldest-first, capping
// at what the lots actually hold, then snaps the cached stock to the
// counted figure. Lot drains and the drift remainder each get their own
// ledger row, so the ledger still sums to the cache.
func recountDeficit(tx *sql.Tx, p RecountParams, stock, need float64) error {
	lotQuery := `
		SELECT id, remaining_quantity
		FROM inventory_lots
		WHERE item_id = ? AND remaining_quantity > 0
		ORDER BY received_at ASC, id ASC
		FOR UPDATE`
	rows, err := tx.Query(lotQuery, p.ItemID)
	if err != nil {
		return fmt.Errorf("failed to lock lots: %w", err)
	}
	defer rows.Close()

	type openLot struct {
		id        int64
		remaining float64
	}
	var lots []openLot
	for rows.Next() {
		var l openLot
		if err := rows.Scan(&l.id, &l.remaining); err != nil {
			return err
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	remainingToTake := need
	runningStock := stock
	for _, lot := range lots {
		if remainingToTake <= 0 {
			break
		}
		take := lot.remaining
		if take > remainingToTake {
			take = remainingToTake
		}

		_, err := tx.Exec("UPDATE inventory_lots SET remaining_quantity = remaining_quantity - ? WHERE id = ?", take, lot.id)
		if err != nil {
			return fmt.Errorf("failed to drain lot %d: %w", lot.id, err)
		}

		runningStock -= take
		lotID := lot.id
		if err := addLedgerRow(tx, p.OrgID, p.ItemID, &lotID, nil, ChangeRecount, -take, runningStock, p.FIFORef, p.Notes, p.ActorID); err != nil {
			return err
		}
		remainingToTake -= take
	}

	// The cache claimed more than the lots held. The count already settled
	// the question, so record the drift correction with no lot attached.
	if remainingToTake > 0 {
		if err := addLedgerRow(tx, p.OrgID, p.ItemID, nil, nil, ChangeRecount, -remainingToTake, p.Counted, p.FIFORef, p.Notes, p.ActorID); err != nil {
			return err
		}
	}

	_, err = tx.Exec("UPDATE inventory_items SET stock_quantity = ?, updated_at = ? WHERE id = ?", p.Counted, time.Now(), p.ItemID)
	if err != nil {
		return fmt.Errorf("failed to update cached stock: %w", err)
	}
	return nil
}
