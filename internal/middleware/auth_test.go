package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"moment-service/internal/auth"
	"moment-service/internal/mocks"
	"moment-service/internal/models"
)

func setupAuthRouter(verifier *mocks.TokenVerifierMock, partyRepo *mocks.PartyRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(verifier, partyRepo))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"party_id": c.GetString(PartyIDKey)})
	})
	return r
}

func TestAuthMiddlewareSuccess(t *testing.T) {
	verifier := new(mocks.TokenVerifierMock)
	partyRepo := new(mocks.PartyRepositoryMock)
	router := setupAuthRouter(verifier, partyRepo)

	verifier.On("VerifyToken", mock.Anything, "good-token").
		Return(auth.Identity{PartyID: "alice", DisplayName: "Alice"}, nil).Once()
	partyRepo.On("Upsert", mock.Anything, "alice", "Alice").
		Return(models.Party{ID: "alice"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	verifier.AssertExpectations(t)
	partyRepo.AssertExpectations(t)
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	router := setupAuthRouter(new(mocks.TokenVerifierMock), new(mocks.PartyRepositoryMock))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	verifier := new(mocks.TokenVerifierMock)
	router := setupAuthRouter(verifier, new(mocks.PartyRepositoryMock))

	verifier.On("VerifyToken", mock.Anything, "bad-token").
		Return(auth.Identity{}, auth.ErrInvalidToken).Once()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	router := setupAuthRouter(new(mocks.TokenVerifierMock), new(mocks.PartyRepositoryMock))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
