package worker

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/batchtrack/batchtrack/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T, cfg *config.Config) (*Worker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, cfg, zerolog.Nop()), mock
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	cfg := &config.Config{}
	cfg.Worker.StuckBatchSpec = "not a cron spec"
	cfg.Worker.SubsExpirySpec = "30 3 * * *"

	w, _ := newTestWorker(t, cfg)
	err := w.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck-batch")
}

func TestStartAndStopWithValidSpecs(t *testing.T) {
	cfg := &config.Config{}
	cfg.Worker.StuckBatchSpec = "@hourly"
	cfg.Worker.SubsExpirySpec = "30 3 * * *"

	w, _ := newTestWorker(t, cfg)
	require.NoError(t, w.Start())
	w.Stop()
}

func TestSweepStuckBatchesFlagsWithoutChangingStatus(t *testing.T) {
	cfg := &config.Config{}
	cfg.Worker.StuckBatchMaxAge = 72 * time.Hour

	w, mock := newTestWorker(t, cfg)

	// The sweep appends a note; it never moves the batch out of
	// in_progress, and batches already carrying the note are skipped.
	mock.ExpectExec(`UPDATE batches\s+SET notes = CONCAT_WS`).
		WithArgs(stuckBatchNote, sqlmock.AnyArg(), sqlmock.AnyArg(), stuckBatchNote).
		WillReturnResult(sqlmock.NewResult(0, 2))

	w.sweepStuckBatches()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiredSubscriptions(t *testing.T) {
	w, mock := newTestWorker(t, &config.Config{})

	mock.ExpectExec("UPDATE org_subscriptions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w.sweepExpiredSubscriptions()

	assert.NoError(t, mock.ExpectationsWereMet())
}
