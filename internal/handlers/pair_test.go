package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"moment-service/internal/middleware"
	"moment-service/internal/mocks"
	"moment-service/internal/models"
	"moment-service/internal/presence"
	"moment-service/internal/repositories"
	"moment-service/internal/ws"
)

func setupPairRouter(handler *PairHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.PartyIDKey, "alice")
		c.Next()
	})
	r.POST("/pairs/invite", handler.CreateInvite)
	r.POST("/pairs/join", handler.JoinWithInvite)
	r.DELETE("/pairs", handler.Unpair)
	r.GET("/pairs/partner", handler.GetPartner)
	return r
}

func newPairHandler(partyRepo *mocks.PartyRepositoryMock, pairingRepo *mocks.PairingRepositoryMock, inviteRepo *mocks.InviteRepositoryMock, pushSender *mocks.PushSenderMock) *PairHandler {
	hub := ws.NewHub()
	broadcaster := presence.NewBroadcaster(pairingRepo, hub)
	return NewPairHandler(partyRepo, pairingRepo, inviteRepo, hub, broadcaster, pushSender, nil, 24*time.Hour)
}

func TestCreateInviteSuccess(t *testing.T) {
	partyRepo := new(mocks.PartyRepositoryMock)
	pairingRepo := new(mocks.PairingRepositoryMock)
	inviteRepo := new(mocks.InviteRepositoryMock)
	handler := newPairHandler(partyRepo, pairingRepo, inviteRepo, new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	pairingRepo.On("ByParty", mock.Anything, "alice").Return(models.Pairing{}, repositories.ErrPairingNotFound).Once()
	inviteRepo.On("Create", mock.Anything, mock.MatchedBy(func(code string) bool {
		return len(code) == inviteCodeLength
	}), "alice", mock.Anything).Return(models.InviteCode{Code: "ABC234", ExpiresAt: time.Now().Add(24 * time.Hour)}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/pairs/invite", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ABC234", resp["code"])
	inviteRepo.AssertExpectations(t)
}

func TestCreateInviteAlreadyPaired(t *testing.T) {
	pairingRepo := new(mocks.PairingRepositoryMock)
	handler := newPairHandler(new(mocks.PartyRepositoryMock), pairingRepo, new(mocks.InviteRepositoryMock), new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	pairingRepo.On("ByParty", mock.Anything, "alice").Return(models.Pairing{ID: 1, PartyA: "alice", PartyB: "bob"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/pairs/invite", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestJoinWithInviteSuccess(t *testing.T) {
	partyRepo := new(mocks.PartyRepositoryMock)
	pairingRepo := new(mocks.PairingRepositoryMock)
	inviteRepo := new(mocks.InviteRepositoryMock)
	handler := newPairHandler(partyRepo, pairingRepo, inviteRepo, new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	inviteRepo.On("Claim", mock.Anything, "ABC234").Return("bob", nil).Once()
	pairingRepo.On("Create", mock.Anything, "alice", "bob").Return(models.Pairing{ID: 7, PartyA: "alice", PartyB: "bob"}, nil).Once()
	// Neither party is live nor push-registered; announcements are dropped.
	partyRepo.On("Get", mock.Anything, mock.Anything).Return(models.Party{}, nil)

	body := bytes.NewBufferString(`{"code":" abc234 "}`)
	req := httptest.NewRequest(http.MethodPost, "/pairs/join", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "bob", resp["partner_id"])
	inviteRepo.AssertExpectations(t)
	pairingRepo.AssertExpectations(t)
}

func TestJoinWithInviteInvalidCode(t *testing.T) {
	inviteRepo := new(mocks.InviteRepositoryMock)
	handler := newPairHandler(new(mocks.PartyRepositoryMock), new(mocks.PairingRepositoryMock), inviteRepo, new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	inviteRepo.On("Claim", mock.Anything, "NOPE99").Return("", repositories.ErrInviteInvalid).Once()

	req := httptest.NewRequest(http.MethodPost, "/pairs/join", bytes.NewBufferString(`{"code":"NOPE99"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinWithInviteExpiredCode(t *testing.T) {
	inviteRepo := new(mocks.InviteRepositoryMock)
	handler := newPairHandler(new(mocks.PartyRepositoryMock), new(mocks.PairingRepositoryMock), inviteRepo, new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	inviteRepo.On("Claim", mock.Anything, "OLD234").Return("", repositories.ErrInviteExpired).Once()

	req := httptest.NewRequest(http.MethodPost, "/pairs/join", bytes.NewBufferString(`{"code":"OLD234"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusGone, rec.Code)
}

func TestJoinWithOwnInvite(t *testing.T) {
	inviteRepo := new(mocks.InviteRepositoryMock)
	handler := newPairHandler(new(mocks.PartyRepositoryMock), new(mocks.PairingRepositoryMock), inviteRepo, new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	inviteRepo.On("Claim", mock.Anything, "MINE22").Return("alice", nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/pairs/join", bytes.NewBufferString(`{"code":"MINE22"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinWhenAlreadyPaired(t *testing.T) {
	pairingRepo := new(mocks.PairingRepositoryMock)
	inviteRepo := new(mocks.InviteRepositoryMock)
	handler := newPairHandler(new(mocks.PartyRepositoryMock), pairingRepo, inviteRepo, new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	inviteRepo.On("Claim", mock.Anything, "ABC234").Return("bob", nil).Once()
	pairingRepo.On("Create", mock.Anything, "alice", "bob").Return(models.Pairing{}, repositories.ErrAlreadyPaired).Once()

	req := httptest.NewRequest(http.MethodPost, "/pairs/join", bytes.NewBufferString(`{"code":"ABC234"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnpairSuccess(t *testing.T) {
	pairingRepo := new(mocks.PairingRepositoryMock)
	handler := newPairHandler(new(mocks.PartyRepositoryMock), pairingRepo, new(mocks.InviteRepositoryMock), new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	pairingRepo.On("ByParty", mock.Anything, "alice").Return(models.Pairing{ID: 3, PartyA: "alice", PartyB: "bob"}, nil).Once()
	pairingRepo.On("Delete", mock.Anything, 3).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/pairs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	pairingRepo.AssertExpectations(t)
}

func TestUnpairNotPaired(t *testing.T) {
	pairingRepo := new(mocks.PairingRepositoryMock)
	handler := newPairHandler(new(mocks.PartyRepositoryMock), pairingRepo, new(mocks.InviteRepositoryMock), new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	pairingRepo.On("ByParty", mock.Anything, "alice").Return(models.Pairing{}, repositories.ErrPairingNotFound).Once()

	req := httptest.NewRequest(http.MethodDelete, "/pairs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPartnerSuccess(t *testing.T) {
	partyRepo := new(mocks.PartyRepositoryMock)
	pairingRepo := new(mocks.PairingRepositoryMock)
	handler := newPairHandler(partyRepo, pairingRepo, new(mocks.InviteRepositoryMock), new(mocks.PushSenderMock))
	router := setupPairRouter(handler)

	pairingRepo.On("ByParty", mock.Anything, "alice").Return(models.Pairing{ID: 3, PartyA: "alice", PartyB: "bob"}, nil).Once()
	partyRepo.On("Get", mock.Anything, "bob").Return(models.Party{ID: "bob", DisplayName: "Bob"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/pairs/partner", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "bob", resp["party_id"])
	assert.Equal(t, false, resp["is_online"])
}
