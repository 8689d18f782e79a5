// Package worker runs the background sweeps: flagging batches that were
// started and forgotten, and expiring subscriptions past their paid-up date.
package worker

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/batchtrack/batchtrack/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Worker owns the cron scheduler and the DB handle the jobs run against.
type Worker struct {
	db   *sql.DB
	cfg  *config.Config
	log  zerolog.Logger
	cron *cron.Cron
}

func New(db *sql.DB, cfg *config.Config, log zerolog.Logger) *Worker {
	return &Worker{
		db:  db,
		cfg: cfg,
		log: log.With().Str("component", "worker").Logger(),
	}
}

// Start registers the jobs and kicks off the scheduler. Invalid cron specs
// are a boot-time error; better to crash than silently never sweep.
func (w *Worker) Start() error {
	w.cron = cron.New()

	if _, err := w.cron.AddFunc(w.cfg.Worker.StuckBatchSpec, w.sweepStuckBatches); err != nil {
		return fmt.Errorf("invalid stuck-batch cron spec %q: %w", w.cfg.Worker.StuckBatchSpec, err)
	}
	if _, err := w.cron.AddFunc(w.cfg.Worker.SubsExpirySpec, w.sweepExpiredSubscriptions); err != nil {
		return fmt.Errorf("invalid subscription cron spec %q: %w", w.cfg.Worker.SubsExpirySpec, err)
	}

	w.cron.Start()
	w.log.Info().
		Str("stuck_batches", w.cfg.Worker.StuckBatchSpec).
		Str("subscriptions", w.cfg.Worker.SubsExpirySpec).
		Msg("background sweeps scheduled")
	return nil
}

// Stop halts the scheduler and waits for any running job to finish.
func (w *Worker) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

// stuckBatchNote marks a batch the sweep has already seen, so a batch is
// only flagged once.
const stuckBatchNote = "Flagged: still in progress past the stuck-batch cutoff"

// sweepStuckBatches flags batches that have sat in_progress longer than the
// configured cutoff. It only annotates and logs; the maker decides whether
// the batch gets completed or failed, since either way the ingredients are
// already consumed.
func (w *Worker) sweepStuckBatches() {
	cutoff := time.Now().Add(-w.cfg.Worker.StuckBatchMaxAge)

	result, err := w.db.Exec(`
		UPDATE batches
		SET notes = CONCAT_WS('\n', notes, ?),
		    updated_at = ?
		WHERE status = 'in_progress' AND started_at < ?
		  AND (notes IS NULL OR notes NOT LIKE CONCAT('%', ?, '%'))`,
		stuckBatchNote, time.Now(), cutoff, stuckBatchNote)
	if err != nil {
		w.log.Error().Err(err).Msg("stuck-batch sweep failed")
		return
	}

	if n, _ := result.RowsAffected(); n > 0 {
		w.log.Warn().Int64("batches", n).Time("cutoff", cutoff).Msg("flagged stuck batches")
	}
}

// sweepExpiredSubscriptions flips trialing/active/past_due subscriptions to
// expired once expires_at has passed. Entitlement checks then fall back to
// the tightest limits.
func (w *Worker) sweepExpiredSubscriptions() {
	result, err := w.db.Exec(`
		UPDATE org_subscriptions
		SET status = 'expired', updated_at = ?
		WHERE status IN ('trialing', 'active', 'past_due') AND expires_at < ?`,
		time.Now(), time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("subscription expiry sweep failed")
		return
	}

	if n, _ := result.RowsAffected(); n > 0 {
		w.log.Info().Int64("subscriptions", n).Msg("expired lapsed subscriptions")
	}
}
