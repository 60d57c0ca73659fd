package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChangePublisher emits a roster change event on the live feed.
type ChangePublisher interface {
	PublishChange(ctx context.Context) error
}

// NewRosterReconcileHandler returns the handler for TaskRosterReconcile.
// Redis pub/sub is at-most-once; a periodic republish heals synchronizers
// that missed an event.
func NewRosterReconcileHandler(logger *slog.Logger, publisher ChangePublisher) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RosterReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := publisher.PublishChange(ctx); err != nil {
			logger.Warn("roster reconcile publish", slog.Any("error", err))
			return err
		}
		logger.Info("roster reconcile published",
			slog.Time("scheduled_for", payload.ScheduledFor))
		return nil
	}
}

// NewSessionsPurgeHandler returns the handler for TaskSessionsPurge.
func NewSessionsPurgeHandler(logger *slog.Logger, pool *pgxpool.Pool) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SessionsPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		before := payload.Before
		if before.IsZero() {
			before = time.Now().UTC()
		}
		tag, err := pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
		if err != nil {
			logger.Warn("sessions purge", slog.Any("error", err))
			return err
		}
		logger.Info("sessions purged", slog.Int64("count", tag.RowsAffected()))
		return nil
	}
}
