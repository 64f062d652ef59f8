package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"moment-service/internal/models"
)

// DeliveryTaskRepository abstracts the offline pending-delivery queue.
type DeliveryTaskRepository interface {
	Replace(ctx context.Context, task models.DeliveryTask) (models.DeliveryTask, error)
	ListForTarget(ctx context.Context, targetPartyID string) ([]models.DeliveryTask, error)
	Delete(ctx context.Context, taskID int) error
	IncrementAttempts(ctx context.Context, taskID int) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// DeliveryTaskRepo is a sqlx implementation of DeliveryTaskRepository.
type DeliveryTaskRepo struct {
	db *sqlx.DB
}

// NewDeliveryTaskRepo constructs a DeliveryTaskRepo.
func NewDeliveryTaskRepo(db *sqlx.DB) *DeliveryTaskRepo {
	return &DeliveryTaskRepo{db: db}
}

// Replace enqueues a task, dropping any earlier task for the same
// target. With one partner and one live moment per pairing, a queued
// reference to a superseded moment must never outlive its supersessor.
func (r *DeliveryTaskRepo) Replace(ctx context.Context, task models.DeliveryTask) (models.DeliveryTask, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.DeliveryTask{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM delivery_tasks WHERE target_party_id=$1`, task.TargetPartyID); err != nil {
		return models.DeliveryTask{}, err
	}

	var stored models.DeliveryTask
	if err := tx.QueryRowxContext(ctx, `INSERT INTO delivery_tasks (target_party_id, moment_id, payload, expires_at) VALUES ($1, $2, $3, $4)
        RETURNING id, target_party_id, moment_id, payload, attempts, created_at, expires_at`,
		task.TargetPartyID, task.MomentID, task.Payload, task.ExpiresAt).
		Scan(&stored.ID, &stored.TargetPartyID, &stored.MomentID, &stored.Payload, &stored.Attempts, &stored.CreatedAt, &stored.ExpiresAt); err != nil {
		return models.DeliveryTask{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.DeliveryTask{}, err
	}
	return stored, nil
}

// ListForTarget returns pending tasks in createdAt ascending order.
// Tasks past their retention window are excluded; the sweep deletes
// them later, but an expired moment must never be handed out between
// expiry and the next sweep.
func (r *DeliveryTaskRepo) ListForTarget(ctx context.Context, targetPartyID string) ([]models.DeliveryTask, error) {
	var tasks []models.DeliveryTask
	err := r.db.SelectContext(ctx, &tasks, `SELECT id, target_party_id, moment_id, payload, attempts, created_at, expires_at
        FROM delivery_tasks WHERE target_party_id=$1 AND expires_at > NOW() ORDER BY created_at ASC`, targetPartyID)
	return tasks, err
}

// Delete consumes a delivered task.
func (r *DeliveryTaskRepo) Delete(ctx context.Context, taskID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM delivery_tasks WHERE id=$1`, taskID)
	return err
}

// IncrementAttempts bumps the attempt counter after a failed push.
func (r *DeliveryTaskRepo) IncrementAttempts(ctx context.Context, taskID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE delivery_tasks SET attempts = attempts + 1 WHERE id=$1`, taskID)
	return err
}

// DeleteExpired purges tasks past their retention window.
func (r *DeliveryTaskRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM delivery_tasks WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// Count returns queue depth across all targets.
func (r *DeliveryTaskRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM delivery_tasks`)
	return count, err
}
