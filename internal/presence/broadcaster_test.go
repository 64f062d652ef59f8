package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"moment-service/internal/mocks"
	"moment-service/internal/models"
	"moment-service/internal/repositories"
	"moment-service/internal/ws"
)

func TestOnTransitionEmitsOncePerStateChange(t *testing.T) {
	pairingRepo := new(mocks.PairingRepositoryMock)
	live := new(mocks.LiveSenderMock)
	broadcaster := NewBroadcaster(pairingRepo, live)

	pairingRepo.On("ByParty", mock.Anything, "alice").
		Return(models.Pairing{ID: 1, PartyA: "alice", PartyB: "bob"}, nil)
	live.On("IsConnected", "bob").Return(true)
	live.On("Send", "bob", mock.MatchedBy(func(e ws.Event) bool {
		presence, ok := e.(*ws.Presence)
		return ok && presence.PartyID == "alice" && presence.IsOnline
	})).Return(nil).Once()

	broadcaster.OnTransition(context.Background(), "alice", true)
	// Repeated same-state transition must be dropped.
	broadcaster.OnTransition(context.Background(), "alice", true)

	live.AssertNumberOfCalls(t, "Send", 1)

	live.On("Send", "bob", mock.MatchedBy(func(e ws.Event) bool {
		presence, ok := e.(*ws.Presence)
		return ok && !presence.IsOnline
	})).Return(nil).Once()

	broadcaster.OnTransition(context.Background(), "alice", false)
	live.AssertExpectations(t)
}

func TestOnTransitionNoPartnerChannel(t *testing.T) {
	pairingRepo := new(mocks.PairingRepositoryMock)
	live := new(mocks.LiveSenderMock)
	broadcaster := NewBroadcaster(pairingRepo, live)

	pairingRepo.On("ByParty", mock.Anything, "alice").
		Return(models.Pairing{ID: 1, PartyA: "alice", PartyB: "bob"}, nil)
	live.On("IsConnected", "bob").Return(false)

	broadcaster.OnTransition(context.Background(), "alice", true)
	live.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestOnTransitionUnpaired(t *testing.T) {
	pairingRepo := new(mocks.PairingRepositoryMock)
	live := new(mocks.LiveSenderMock)
	broadcaster := NewBroadcaster(pairingRepo, live)

	pairingRepo.On("ByParty", mock.Anything, "loner").
		Return(models.Pairing{}, repositories.ErrPairingNotFound)

	broadcaster.OnTransition(context.Background(), "loner", true)
	live.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestOnHeartbeatNotDeduplicated(t *testing.T) {
	pairingRepo := new(mocks.PairingRepositoryMock)
	live := new(mocks.LiveSenderMock)
	broadcaster := NewBroadcaster(pairingRepo, live)

	pairingRepo.On("ByParty", mock.Anything, "alice").
		Return(models.Pairing{ID: 1, PartyA: "alice", PartyB: "bob"}, nil)
	live.On("IsConnected", "bob").Return(true)
	live.On("Send", "bob", mock.MatchedBy(func(e ws.Event) bool {
		_, ok := e.(*ws.PartnerHeartbeat)
		return ok
	})).Return(nil).Twice()

	broadcaster.OnHeartbeat(context.Background(), "alice")
	broadcaster.OnHeartbeat(context.Background(), "alice")
	live.AssertExpectations(t)
}

func TestForgetResetsTransitionState(t *testing.T) {
	pairingRepo := new(mocks.PairingRepositoryMock)
	live := new(mocks.LiveSenderMock)
	broadcaster := NewBroadcaster(pairingRepo, live)

	pairingRepo.On("ByParty", mock.Anything, "alice").
		Return(models.Pairing{ID: 1, PartyA: "alice", PartyB: "bob"}, nil)
	live.On("IsConnected", "bob").Return(true)
	live.On("Send", "bob", mock.Anything).Return(nil).Twice()

	broadcaster.OnTransition(context.Background(), "alice", true)
	broadcaster.Forget("alice")
	// After a forget the same state emits again.
	broadcaster.OnTransition(context.Background(), "alice", true)

	live.AssertExpectations(t)
}
