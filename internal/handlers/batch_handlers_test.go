package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// orgRouter registers the route behind a stub that injects the identity
// AuthMiddleware would have set.
func orgRouter(method, path string, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path,
		func(c *gin.Context) {
			c.Set("userID", int64(7))
			c.Set("orgID", int64(1))
			c.Set("userRole", "owner")
		},
		handler)
	return r
}

func TestStartBatchReturnsShortageList(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	mock.ExpectBegin()
	// Batch lock: planned, scale 2.
	mock.ExpectQuery("SELECT recipe_id, scale, status FROM batches").
		WillReturnRows(sqlmock.NewRows([]string{"recipe_id", "scale", "status"}).AddRow(int64(3), 2.0, "planned"))
	// Label reservation.
	mock.ExpectExec("INSERT INTO batch_label_counters").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT counter FROM batch_label_counters").
		WillReturnRows(sqlmock.NewRows([]string{"counter"}).AddRow(3))
	mock.ExpectExec("UPDATE batch_label_counters").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT label_prefix FROM recipes").
		WillReturnRows(sqlmock.NewRows([]string{"label_prefix"}).AddRow("SOAP"))
	// One ingredient: 5 per unit, so 10 at scale 2.
	mock.ExpectQuery("SELECT item_id, quantity FROM recipe_ingredients").
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "quantity"}).AddRow(int64(10), 5.0))
	// The engine's item lock finds only 2 on hand.
	mock.ExpectQuery("SELECT stock_quantity, name").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "name"}).AddRow(2.0, "Olive Oil"))
	mock.ExpectRollback()

	r := orgRouter(http.MethodPost, "/v1/org/batches/:id/start", h.StartBatch)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/org/batches/12/start", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Olive Oil")
	assert.Contains(t, w.Body.String(), "shortages")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartBatchRejectsNonPlannedBatch(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT recipe_id, scale, status FROM batches").
		WillReturnRows(sqlmock.NewRows([]string{"recipe_id", "scale", "status"}).AddRow(int64(3), 1.0, "completed"))
	mock.ExpectRollback()

	r := orgRouter(http.MethodPost, "/v1/org/batches/:id/start", h.StartBatch)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/org/batches/12/start", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelBatchOnlyTouchesPlanned(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	// Affects no rows: the batch is already started (or someone else's).
	mock.ExpectExec("UPDATE batches").
		WillReturnResult(sqlmock.NewResult(0, 0))

	r := orgRouter(http.MethodPost, "/v1/org/batches/:id/cancel", h.CancelBatch)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/org/batches/12/cancel",
		bytes.NewReader([]byte(`{"reason":"changed my mind"}`)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailBatchRecordsReason(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	mock.ExpectExec("UPDATE batches").
		WithArgs("failed", sqlmock.AnyArg(), "seized in the mold", sqlmock.AnyArg(), "12", int64(1), "in_progress").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := orgRouter(http.MethodPost, "/v1/org/batches/:id/fail", h.FailBatch)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/org/batches/12/fail",
		bytes.NewReader([]byte(`{"reason":"seized in the mold"}`)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanBatchEnforcesMonthlyLimit(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT t.max_batches_month").
		WillReturnRows(sqlmock.NewRows([]string{"max_batches_month"}).AddRow(30))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM batches").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectRollback()

	r := orgRouter(http.MethodPost, "/v1/org/batches", h.PlanBatch)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/org/batches",
		bytes.NewReader([]byte(`{"recipeId":3,"scale":1.5}`)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanBatchCreatesPlannedBatch(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT t.max_batches_month").
		WillReturnRows(sqlmock.NewRows([]string{"max_batches_month"}).AddRow(30))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM batches").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("SELECT yield_quantity FROM recipes").
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"yield_quantity"}).AddRow(24.0))
	mock.ExpectExec("INSERT INTO batches").
		WillReturnResult(sqlmock.NewResult(55, 1))
	mock.ExpectCommit()

	r := orgRouter(http.MethodPost, "/v1/org/batches", h.PlanBatch)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/org/batches",
		bytes.NewReader([]byte(`{"recipeId":3,"scale":1.5}`)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "55")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteBatchCreditsSKU(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, label_code FROM batches").
		WillReturnRows(sqlmock.NewRows([]string{"status", "label_code"}).AddRow("in_progress", "SOAP-202608-003"))
	// The yield lands on the org-scoped SKU.
	mock.ExpectExec("UPDATE product_skus").
		WithArgs(24.0, sqlmock.AnyArg(), int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE batches").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r := orgRouter(http.MethodPost, "/v1/org/batches/:id/complete", h.CompleteBatch)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/org/batches/12/complete",
		bytes.NewReader([]byte(`{"actualYield":24,"skuId":5}`)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteBatchRejectsForeignSKU(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, label_code FROM batches").
		WillReturnRows(sqlmock.NewRows([]string{"status", "label_code"}).AddRow("in_progress", "SOAP-202608-003"))
	// SKU belongs to another org: the join matches nothing.
	mock.ExpectExec("UPDATE product_skus").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	r := orgRouter(http.MethodPost, "/v1/org/batches/:id/complete", h.CompleteBatch)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/org/batches/12/complete",
		bytes.NewReader([]byte(`{"actualYield":24,"skuId":99}`)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
