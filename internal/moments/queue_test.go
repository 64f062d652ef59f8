package moments_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"moment-service/internal/mocks"
	"moment-service/internal/models"
	"moment-service/internal/moments"
	"moment-service/internal/ws"
)

func taskFor(t *testing.T, id int, momentID string) models.DeliveryTask {
	t.Helper()
	payload, err := json.Marshal(ws.MomentAvailable{MomentID: momentID, URL: moments.LatestMomentPath})
	require.NoError(t, err)
	return models.DeliveryTask{ID: id, TargetPartyID: "bob", MomentID: momentID, Payload: payload}
}

func TestDrainDeliversInOrder(t *testing.T) {
	taskRepo := new(mocks.DeliveryTaskRepositoryMock)
	live := new(mocks.LiveSenderMock)
	queue := moments.NewQueue(taskRepo, live, 7*24*time.Hour)

	taskRepo.On("ListForTarget", mock.Anything, "bob").
		Return([]models.DeliveryTask{taskFor(t, 1, "m1"), taskFor(t, 2, "m2")}, nil).Once()

	var delivered []string
	live.On("Send", "bob", mock.Anything).Run(func(args mock.Arguments) {
		available := args.Get(1).(*ws.MomentAvailable)
		assert.True(t, available.Pending)
		delivered = append(delivered, available.MomentID)
	}).Return(nil).Twice()
	taskRepo.On("Delete", mock.Anything, 1).Return(nil).Once()
	taskRepo.On("Delete", mock.Anything, 2).Return(nil).Once()
	taskRepo.On("Count", mock.Anything).Return(0, nil)

	count, err := queue.Drain(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"m1", "m2"}, delivered)
	taskRepo.AssertExpectations(t)
}

func TestDrainStopsAtFirstSendFailure(t *testing.T) {
	taskRepo := new(mocks.DeliveryTaskRepositoryMock)
	live := new(mocks.LiveSenderMock)
	queue := moments.NewQueue(taskRepo, live, 7*24*time.Hour)

	taskRepo.On("ListForTarget", mock.Anything, "bob").
		Return([]models.DeliveryTask{taskFor(t, 1, "m1"), taskFor(t, 2, "m2")}, nil).Once()

	live.On("Send", "bob", mock.Anything).Return(errors.New("write: broken pipe")).Once()
	taskRepo.On("IncrementAttempts", mock.Anything, 1).Return(nil).Once()
	taskRepo.On("Count", mock.Anything).Return(2, nil)

	count, err := queue.Drain(context.Background(), "bob")
	require.Error(t, err)
	assert.Equal(t, 0, count)

	// The failed task stays queued for the next connect.
	taskRepo.AssertNotCalled(t, "Delete", mock.Anything, 1)
	taskRepo.AssertNotCalled(t, "Delete", mock.Anything, 2)
}

func TestDrainDropsUndecodableTask(t *testing.T) {
	taskRepo := new(mocks.DeliveryTaskRepositoryMock)
	live := new(mocks.LiveSenderMock)
	queue := moments.NewQueue(taskRepo, live, 7*24*time.Hour)

	broken := models.DeliveryTask{ID: 1, TargetPartyID: "bob", MomentID: "m1", Payload: []byte("{")}
	taskRepo.On("ListForTarget", mock.Anything, "bob").
		Return([]models.DeliveryTask{broken, taskFor(t, 2, "m2")}, nil).Once()

	taskRepo.On("Delete", mock.Anything, 1).Return(nil).Once()
	live.On("Send", "bob", mock.Anything).Return(nil).Once()
	taskRepo.On("Delete", mock.Anything, 2).Return(nil).Once()
	taskRepo.On("Count", mock.Anything).Return(0, nil)

	count, err := queue.Drain(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDrainDropsExpiredTaskBetweenSweeps(t *testing.T) {
	taskRepo := new(mocks.DeliveryTaskRepositoryMock)
	live := new(mocks.LiveSenderMock)
	queue := moments.NewQueue(taskRepo, live, 7*24*time.Hour)

	expired := taskFor(t, 1, "m1")
	expired.ExpiresAt = time.Now().Add(-30 * time.Minute)
	fresh := taskFor(t, 2, "m2")
	fresh.ExpiresAt = time.Now().Add(time.Hour)
	taskRepo.On("ListForTarget", mock.Anything, "bob").
		Return([]models.DeliveryTask{expired, fresh}, nil).Once()

	taskRepo.On("Delete", mock.Anything, 1).Return(nil).Once()
	live.On("Send", "bob", mock.MatchedBy(func(event ws.Event) bool {
		return event.(*ws.MomentAvailable).MomentID == "m2"
	})).Return(nil).Once()
	taskRepo.On("Delete", mock.Anything, 2).Return(nil).Once()
	taskRepo.On("Count", mock.Anything).Return(0, nil)

	count, err := queue.Drain(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	live.AssertNumberOfCalls(t, "Send", 1)
	taskRepo.AssertExpectations(t)
}

func TestDrainNoTasks(t *testing.T) {
	taskRepo := new(mocks.DeliveryTaskRepositoryMock)
	queue := moments.NewQueue(taskRepo, new(mocks.LiveSenderMock), 7*24*time.Hour)

	taskRepo.On("ListForTarget", mock.Anything, "bob").Return([]models.DeliveryTask(nil), nil).Once()

	count, err := queue.Drain(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEnqueueReplacesEarlierTask(t *testing.T) {
	taskRepo := new(mocks.DeliveryTaskRepositoryMock)
	queue := moments.NewQueue(taskRepo, new(mocks.LiveSenderMock), 7*24*time.Hour)

	taskRepo.On("Replace", mock.Anything, mock.MatchedBy(func(task models.DeliveryTask) bool {
		return task.TargetPartyID == "bob" && task.MomentID == "m9" && !task.ExpiresAt.IsZero()
	})).Return(models.DeliveryTask{ID: 3}, nil).Once()
	taskRepo.On("Count", mock.Anything).Return(1, nil)

	err := queue.Enqueue(context.Background(), "bob", ws.MomentAvailable{MomentID: "m9", URL: moments.LatestMomentPath})
	require.NoError(t, err)
	taskRepo.AssertExpectations(t)
}

func TestSweepPurgesExpired(t *testing.T) {
	taskRepo := new(mocks.DeliveryTaskRepositoryMock)
	queue := moments.NewQueue(taskRepo, new(mocks.LiveSenderMock), 7*24*time.Hour)

	taskRepo.On("DeleteExpired", mock.Anything, mock.Anything).Return(4, nil).Once()
	taskRepo.On("Count", mock.Anything).Return(0, nil)

	count, err := queue.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
