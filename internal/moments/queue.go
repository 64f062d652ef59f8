package moments

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"moment-service/internal/models"
	"moment-service/internal/observability"
	"moment-service/internal/repositories"
	"moment-service/internal/ws"
)

// Queue is the offline pending-delivery queue. Tasks are enqueued when
// fan-out finds no usable channel and drained once per reconnect.
type Queue struct {
	taskRepo  repositories.DeliveryTaskRepository
	live      LiveSender
	retention time.Duration
}

// NewQueue constructs a Queue.
func NewQueue(taskRepo repositories.DeliveryTaskRepository, live LiveSender, retention time.Duration) *Queue {
	return &Queue{taskRepo: taskRepo, live: live, retention: retention}
}

// Enqueue stores a pending delivery for the target, replacing any
// earlier task so a superseded moment's reference never survives.
func (q *Queue) Enqueue(ctx context.Context, targetPartyID string, available ws.MomentAvailable) error {
	payload, err := json.Marshal(available)
	if err != nil {
		return err
	}

	_, err = q.taskRepo.Replace(ctx, models.DeliveryTask{
		TargetPartyID: targetPartyID,
		MomentID:      available.MomentID,
		Payload:       payload,
		ExpiresAt:     time.Now().Add(q.retention),
	})
	if err != nil {
		return err
	}

	q.refreshDepth(ctx)
	return nil
}

// Drain delivers the party's queued tasks over its live channel in
// createdAt ascending order, deleting each task before attempting the
// next. A crash mid-drain may redeliver one task; receivers dedup on
// the moment id. Delivery stops at the first send failure so the rest
// stay queued for the next connect.
func (q *Queue) Drain(ctx context.Context, partyID string) (int, error) {
	tasks, err := q.taskRepo.ListForTarget(ctx, partyID)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	delivered := 0
	now := time.Now()
	for _, task := range tasks {
		// Second guard behind the repository's expiry filter. An
		// ephemeral photo that expired while the list was in flight is
		// dropped here rather than delivered late.
		if !task.ExpiresAt.IsZero() && now.After(task.ExpiresAt) {
			_ = q.taskRepo.Delete(ctx, task.ID)
			observability.AddExpiredTasks(1)
			continue
		}

		var available ws.MomentAvailable
		if err := json.Unmarshal(task.Payload, &available); err != nil {
			log.Printf("dropping undecodable delivery task id=%d: %v", task.ID, err)
			_ = q.taskRepo.Delete(ctx, task.ID)
			continue
		}
		available.Pending = true

		if err := q.live.Send(partyID, &available); err != nil {
			if incErr := q.taskRepo.IncrementAttempts(ctx, task.ID); incErr != nil {
				log.Printf("increment attempts failed task=%d: %v", task.ID, incErr)
			}
			observability.IncDelivery(ws.ChannelLive, "drain_error")
			q.refreshDepth(ctx)
			return delivered, err
		}

		if err := q.taskRepo.Delete(ctx, task.ID); err != nil {
			q.refreshDepth(ctx)
			return delivered, err
		}
		delivered++
		observability.IncDelivery(ws.ChannelLive, "drained")
	}

	q.refreshDepth(ctx)
	return delivered, nil
}

// Sweep purges tasks past their retention window. An expired ephemeral
// photo is silently dropped, never delivered late.
func (q *Queue) Sweep(ctx context.Context) (int, error) {
	count, err := q.taskRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		observability.AddExpiredTasks(count)
		log.Printf("purged %d expired delivery tasks", count)
	}
	q.refreshDepth(ctx)
	return count, nil
}

// StartSweeper runs the expiry sweep on the given interval until the
// context is cancelled.
func (q *Queue) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := q.Sweep(ctx); err != nil {
					log.Printf("delivery task sweep failed: %v", err)
				}
			}
		}
	}()
}

func (q *Queue) refreshDepth(ctx context.Context) {
	depth, err := q.taskRepo.Count(ctx)
	if err != nil {
		return
	}
	observability.SetQueueDepth(depth)
}
