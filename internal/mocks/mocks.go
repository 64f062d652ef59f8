package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"moment-service/internal/auth"
	"moment-service/internal/models"
	"moment-service/internal/moments"
	"moment-service/internal/push"
	"moment-service/internal/repositories"
	"moment-service/internal/ws"
)

type PartyRepositoryMock struct {
	mock.Mock
}

func (m *PartyRepositoryMock) Upsert(ctx context.Context, partyID, displayName string) (models.Party, error) {
	args := m.Called(ctx, partyID, displayName)
	var party models.Party
	if val := args.Get(0); val != nil {
		party = val.(models.Party)
	}
	return party, args.Error(1)
}

func (m *PartyRepositoryMock) Get(ctx context.Context, partyID string) (models.Party, error) {
	args := m.Called(ctx, partyID)
	var party models.Party
	if val := args.Get(0); val != nil {
		party = val.(models.Party)
	}
	return party, args.Error(1)
}

func (m *PartyRepositoryMock) SetPushToken(ctx context.Context, partyID, token string) error {
	args := m.Called(ctx, partyID, token)
	return args.Error(0)
}

func (m *PartyRepositoryMock) SetLiveChannel(ctx context.Context, partyID, connID string) error {
	args := m.Called(ctx, partyID, connID)
	return args.Error(0)
}

func (m *PartyRepositoryMock) ClearLiveChannel(ctx context.Context, partyID, connID string) error {
	args := m.Called(ctx, partyID, connID)
	return args.Error(0)
}

func (m *PartyRepositoryMock) TouchLastSeen(ctx context.Context, partyID string) error {
	args := m.Called(ctx, partyID)
	return args.Error(0)
}

func (m *PartyRepositoryMock) UpdateSettings(ctx context.Context, partyID string, notificationsEnabled bool) error {
	args := m.Called(ctx, partyID, notificationsEnabled)
	return args.Error(0)
}

func (m *PartyRepositoryMock) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type PairingRepositoryMock struct {
	mock.Mock
}

func (m *PairingRepositoryMock) Create(ctx context.Context, partyID, partnerID string) (models.Pairing, error) {
	args := m.Called(ctx, partyID, partnerID)
	var pairing models.Pairing
	if val := args.Get(0); val != nil {
		pairing = val.(models.Pairing)
	}
	return pairing, args.Error(1)
}

func (m *PairingRepositoryMock) ByParty(ctx context.Context, partyID string) (models.Pairing, error) {
	args := m.Called(ctx, partyID)
	var pairing models.Pairing
	if val := args.Get(0); val != nil {
		pairing = val.(models.Pairing)
	}
	return pairing, args.Error(1)
}

func (m *PairingRepositoryMock) Get(ctx context.Context, pairingID int) (models.Pairing, error) {
	args := m.Called(ctx, pairingID)
	var pairing models.Pairing
	if val := args.Get(0); val != nil {
		pairing = val.(models.Pairing)
	}
	return pairing, args.Error(1)
}

func (m *PairingRepositoryMock) Delete(ctx context.Context, pairingID int) error {
	args := m.Called(ctx, pairingID)
	return args.Error(0)
}

type InviteRepositoryMock struct {
	mock.Mock
}

func (m *InviteRepositoryMock) Create(ctx context.Context, code, issuerPartyID string, expiresAt time.Time) (models.InviteCode, error) {
	args := m.Called(ctx, code, issuerPartyID, expiresAt)
	var invite models.InviteCode
	if val := args.Get(0); val != nil {
		invite = val.(models.InviteCode)
	}
	return invite, args.Error(1)
}

func (m *InviteRepositoryMock) Claim(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *InviteRepositoryMock) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

type MomentRepositoryMock struct {
	mock.Mock
}

func (m *MomentRepositoryMock) Replace(ctx context.Context, moment models.Moment) (models.Moment, error) {
	args := m.Called(ctx, moment)
	var stored models.Moment
	if val := args.Get(0); val != nil {
		stored = val.(models.Moment)
	}
	return stored, args.Error(1)
}

func (m *MomentRepositoryMock) RecordOutcome(ctx context.Context, momentID string, liveSent, pushSent bool, rateRemaining int) error {
	args := m.Called(ctx, momentID, liveSent, pushSent, rateRemaining)
	return args.Error(0)
}

func (m *MomentRepositoryMock) GetByClientID(ctx context.Context, clientMomentID string) (models.Moment, error) {
	args := m.Called(ctx, clientMomentID)
	var moment models.Moment
	if val := args.Get(0); val != nil {
		moment = val.(models.Moment)
	}
	return moment, args.Error(1)
}

func (m *MomentRepositoryMock) LatestForPairing(ctx context.Context, pairingID int) (models.Moment, error) {
	args := m.Called(ctx, pairingID)
	var moment models.Moment
	if val := args.Get(0); val != nil {
		moment = val.(models.Moment)
	}
	return moment, args.Error(1)
}

func (m *MomentRepositoryMock) RecordSend(ctx context.Context, senderID string) error {
	args := m.Called(ctx, senderID)
	return args.Error(0)
}

func (m *MomentRepositoryMock) CountSendsSince(ctx context.Context, senderID string, since time.Time) (int, error) {
	args := m.Called(ctx, senderID, since)
	return args.Int(0), args.Error(1)
}

type DeliveryTaskRepositoryMock struct {
	mock.Mock
}

func (m *DeliveryTaskRepositoryMock) Replace(ctx context.Context, task models.DeliveryTask) (models.DeliveryTask, error) {
	args := m.Called(ctx, task)
	var stored models.DeliveryTask
	if val := args.Get(0); val != nil {
		stored = val.(models.DeliveryTask)
	}
	return stored, args.Error(1)
}

func (m *DeliveryTaskRepositoryMock) ListForTarget(ctx context.Context, targetPartyID string) ([]models.DeliveryTask, error) {
	args := m.Called(ctx, targetPartyID)
	var tasks []models.DeliveryTask
	if val := args.Get(0); val != nil {
		tasks = val.([]models.DeliveryTask)
	}
	return tasks, args.Error(1)
}

func (m *DeliveryTaskRepositoryMock) Delete(ctx context.Context, taskID int) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *DeliveryTaskRepositoryMock) IncrementAttempts(ctx context.Context, taskID int) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *DeliveryTaskRepositoryMock) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *DeliveryTaskRepositoryMock) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type LiveSenderMock struct {
	mock.Mock
}

func (m *LiveSenderMock) Send(partyID string, event ws.Event) error {
	args := m.Called(partyID, event)
	return args.Error(0)
}

func (m *LiveSenderMock) IsConnected(partyID string) bool {
	args := m.Called(partyID)
	return args.Bool(0)
}

type PushSenderMock struct {
	mock.Mock
}

func (m *PushSenderMock) SendPush(ctx context.Context, address string, notification push.Notification) error {
	args := m.Called(ctx, address, notification)
	return args.Error(0)
}

type TokenVerifierMock struct {
	mock.Mock
}

func (m *TokenVerifierMock) VerifyToken(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var identity auth.Identity
	if val := args.Get(0); val != nil {
		identity = val.(auth.Identity)
	}
	return identity, args.Error(1)
}

type NormalizerMock struct {
	mock.Mock
}

func (m *NormalizerMock) Normalize(payload []byte) ([]byte, error) {
	args := m.Called(payload)
	var out []byte
	if val := args.Get(0); val != nil {
		out = val.([]byte)
	}
	return out, args.Error(1)
}

var _ repositories.PartyRepository = (*PartyRepositoryMock)(nil)
var _ repositories.PairingRepository = (*PairingRepositoryMock)(nil)
var _ repositories.InviteRepository = (*InviteRepositoryMock)(nil)
var _ repositories.MomentRepository = (*MomentRepositoryMock)(nil)
var _ repositories.DeliveryTaskRepository = (*DeliveryTaskRepositoryMock)(nil)
var _ moments.LiveSender = (*LiveSenderMock)(nil)
var _ push.Sender = (*PushSenderMock)(nil)
var _ auth.TokenVerifier = (*TokenVerifierMock)(nil)
var _ moments.Normalizer = (*NormalizerMock)(nil)
