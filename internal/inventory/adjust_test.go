package inventory

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTx(t *testing.T) (*sql.Tx, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	return tx, mock, func() { db.Close() }
}

func TestConsumeDrainsOldestLotsFirst(t *testing.T) {
	tx, mock, cleanup := newMockTx(t)
	defer cleanup()

	// Item has 110 on hand across two lots; oldest lot holds 30.
	mock.ExpectQuery("SELECT stock_quantity, name").
		WithArgs(int64(42), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(110.0, "Olive Oil"))

	mock.ExpectQuery("SELECT id, remaining_quantity, unit_cost").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "remaining_quantity", "unit_cost"}).
			AddRow(int64(10), 30.0, 2.50).
			AddRow(int64(11), 80.0, 3.00))

	// Lot 10 drains fully, lot 11 gives up the remaining 20.
	mock.ExpectExec("UPDATE inventory_lots SET remaining_quantity").
		WithArgs(30.0, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO inventory_adjustments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE inventory_lots SET remaining_quantity").
		WithArgs(20.0, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO inventory_adjustments").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE inventory_items SET stock_quantity").
		WillReturnResult(sqlmock.NewResult(0, 1))

	consumptions, err := Consume(tx, ConsumeParams{
		OrgID:    1,
		ItemID:   42,
		Quantity: 50,
		FIFORef:  "ref-1",
		ActorID:  7,
	})
	require.NoError(t, err)

	require.Len(t, consumptions, 2)
	assert.Equal(t, int64(10), consumptions[0].LotID)
	assert.Equal(t, 30.0, consumptions[0].Quantity)
	assert.Equal(t, 2.50, consumptions[0].UnitCost)
	assert.Equal(t, int64(11), consumptions[1].LotID)
	assert.Equal(t, 20.0, consumptions[1].Quantity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeLeavesLaterLotsUntouched(t *testing.T) {
	tx, mock, cleanup := newMockTx(t)
	defer cleanup()

	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(100.0, "Beeswax"))
	mock.ExpectQuery("SELECT id, remaining_quantity, unit_cost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "remaining_quantity", "unit_cost"}).
			AddRow(int64(1), 40.0, 1.00).
			AddRow(int64(2), 60.0, 1.20))

	// Only the oldest lot should be touched for a 25-unit draw.
	mock.ExpectExec("UPDATE inventory_lots SET remaining_quantity").
		WithArgs(25.0, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO inventory_adjustments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE inventory_items SET stock_quantity").
		WillReturnResult(sqlmock.NewResult(0, 1))

	consumptions, err := Consume(tx, ConsumeParams{OrgID: 1, ItemID: 9, Quantity: 25, FIFORef: "ref", ActorID: 1})
	require.NoError(t, err)
	require.Len(t, consumptions, 1)
	assert.Equal(t, int64(1), consumptions[0].LotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeShortageFromCachedStock(t *testing.T) {
	tx, mock, cleanup := newMockTx(t)
	defer cleanup()

	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(10.0, "Lye"))

	_, err := Consume(tx, ConsumeParams{OrgID: 1, ItemID: 5, Quantity: 25, FIFORef: "ref", ActorID: 1})

	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Len(t, shortage.Shortages, 1)
	assert.Equal(t, "Lye", shortage.Shortages[0].ItemName)
	assert.Equal(t, 25.0, shortage.Shortages[0].Required)
	assert.Equal(t, 10.0, shortage.Shortages[0].Available)

	// No lots were locked and nothing was written.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeShortageWhenLotsDisagreeWithCache(t *testing.T) {
	tx, mock, cleanup := newMockTx(t)
	defer cleanup()

	// Cache says 50, the lots only hold 40. The lots win.
	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(50.0, "Shea Butter"))
	mock.ExpectQuery("SELECT id, remaining_quantity, unit_cost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "remaining_quantity", "unit_cost"}).
			AddRow(int64(1), 40.0, 4.00))

	_, err := Consume(tx, ConsumeParams{OrgID: 1, ItemID: 5, Quantity: 45, FIFORef: "ref", ActorID: 1})

	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, 40.0, shortage.Shortages[0].Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeRejectsNonPositiveQuantity(t *testing.T) {
	tx, _, cleanup := newMockTx(t)
	defer cleanup()

	_, err := Consume(tx, ConsumeParams{OrgID: 1, ItemID: 1, Quantity: 0})
	assert.Error(t, err)

	var shortage *ShortageError
	assert.False(t, errors.As(err, &shortage), "a bad request is not a shortage")
}

func TestRestockCreatesLotAndLedgerRow(t *testing.T) {
	tx, mock, cleanup := newMockTx(t)
	defer cleanup()

	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(5.0, "Jar 4oz"))
	mock.ExpectExec("INSERT INTO inventory_lots").
		WillReturnResult(sqlmock.NewResult(77, 1))
	mock.ExpectExec("INSERT INTO inventory_adjustments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE inventory_items SET stock_quantity").
		WillReturnResult(sqlmock.NewResult(0, 1))

	lotID, err := Restock(tx, RestockParams{
		OrgID:    1,
		ItemID:   3,
		LotCode:  "PO-1042",
		Quantity: 144,
		UnitCost: 0.35,
		FIFORef:  "ref-2",
		ActorID:  7,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), lotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestockRejectsNonPositiveQuantity(t *testing.T) {
	tx, _, cleanup := newMockTx(t)
	defer cleanup()

	_, err := Restock(tx, RestockParams{OrgID: 1, ItemID: 1, Quantity: -4})
	assert.Error(t, err)
}

func TestRecountNoChange(t *testing.T) {
	tx, mock, cleanup := newMockTx(t)
	defer cleanup()

	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(12.0, "Labels"))

	delta, err := Recount(tx, RecountParams{OrgID: 1, ItemID: 8, Counted: 12, FIFORef: "ref", ActorID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, delta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecountDeficitDrainsFIFO(t *testing.T) {
	tx, mock, cleanup := newMockTx(t)
	defer cleanup()

	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(20.0, "Lavender EO"))
	mock.ExpectQuery("SELECT id, remaining_quantity").
		WillReturnRows(sqlmock.NewRows([]string{"id", "remaining_quantity"}).
			AddRow(int64(4), 20.0))
	mock.ExpectExec("UPDATE inventory_lots SET remaining_quantity").
		WithArgs(5.0, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO inventory_adjustments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE inventory_items SET stock_quantity").
		WithArgs(15.0, sqlmock.AnyArg(), int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	delta, err := Recount(tx, RecountParams{OrgID: 1, ItemID: 6, Counted: 15, FIFORef: "ref", ActorID: 1})
	require.NoError(t, err)
	assert.Equal(t, -5.0, delta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecountRecordsCountWhenLotsHoldLessThanCache(t *testing.T) {
	tx, mock, cleanup := newMockTx(t)
	defer cleanup()

	// Cache says 20 but the lots only hold 10. A count of 5 must still be
	// recorded: drain the 10 the lots have, write the other 5 off as cache
	// drift, and snap the cached stock to the counted figure.
	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(20.0, "Shea Butter"))
	mock.ExpectQuery("SELECT id, remaining_quantity").
		WillReturnRows(sqlmock.NewRows([]string{"id", "remaining_quantity"}).
			AddRow(int64(3), 10.0))
	mock.ExpectExec("UPDATE inventory_lots SET remaining_quantity").
		WithArgs(10.0, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO inventory_adjustments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Drift row: no lot, delta -5, quantity_after = the counted 5.
	mock.ExpectExec("INSERT INTO inventory_adjustments").
		WithArgs(int64(1), int64(3), nil, nil, ChangeRecount, -5.0, 5.0, "ref", "", int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE inventory_items SET stock_quantity").
		WithArgs(5.0, sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	delta, err := Recount(tx, RecountParams{OrgID: 1, ItemID: 3, Counted: 5, FIFORef: "ref", ActorID: 2})
	require.NoError(t, err)
	assert.Equal(t, -15.0, delta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecountSurplusCreatesCorrectionLot(t *testing.T) {
	tx, mock, cleanup := newMockTx(t)
	defer cleanup()

	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(10.0, "Boxes"))
	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(10.0, "Boxes"))
	mock.ExpectExec("INSERT INTO inventory_lots").
		WillReturnResult(sqlmock.NewResult(91, 1))
	mock.ExpectExec("INSERT INTO inventory_adjustments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE inventory_items SET stock_quantity").
		WillReturnResult(sqlmock.NewResult(0, 1))

	delta, err := Recount(tx, RecountParams{OrgID: 1, ItemID: 6, Counted: 18, FIFORef: "ref", ActorID: 1})
	require.NoError(t, err)
	assert.Equal(t, 8.0, delta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecountRejectsNegativeCount(t *testing.T) {
	tx, _, cleanup := newMockTx(t)
	defer cleanup()

	_, err := Recount(tx, RecountParams{OrgID: 1, ItemID: 1, Counted: -1})
	assert.Error(t, err)
}
