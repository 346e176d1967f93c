package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-service/internal/auth"
	"ledger-service/internal/domain"
	"ledger-service/internal/ledger"
	"ledger-service/internal/repository/memory"
	"ledger-service/internal/service"
	"ledger-service/internal/storage"
)

type stubSnapshots struct {
	objects []storage.ObjectInfo
	err     error
}

func (s stubSnapshots) List(context.Context) ([]storage.ObjectInfo, error) {
	return s.objects, s.err
}

type stubResolver struct {
	accountID int64
	err       error
}

func (r stubResolver) ResolveCallerAccountID(context.Context, string) (int64, error) {
	return r.accountID, r.err
}

type testServer struct {
	router *gin.Engine
}

func newTestServer(t *testing.T, snapshots SnapshotLister) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	engine := ledger.NewEngine(ledger.Config{LockTimeout: time.Second, Logger: logger}, store.Accounts(), ledger.NewRegistry())

	handler := NewHandler(
		service.NewUserService(store.Users()),
		service.NewAccountService(store.Accounts()),
		engine,
		tokens,
		auth.NewResolver(tokens, store.Users()),
		snapshots,
	)
	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// signUp registers a user and logs in, returning the token and account id.
func (s *testServer) signUp(t *testing.T, username, initial string) (string, int64) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username":        username,
		"password":        "long-enough-password",
		"initial_balance": initial,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": username,
		"password": "long-enough-password",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.AccountID
}

func TestTransferFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	aliceToken, _ := srv.signUp(t, "alice", "100")
	bobToken, bobAccount := srv.signUp(t, "bob", "50")

	rec := srv.do(t, http.MethodPost, "/api/transfers", aliceToken, gin.H{
		"recipient_account_id": bobAccount,
		"amount":               "30",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt ReceiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, "70", receipt.SenderBalance)
	assert.Equal(t, "80", receipt.RecipientBalance)
	assert.NotEmpty(t, receipt.ID)

	rec = srv.do(t, http.MethodGet, "/api/accounts/me", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "80", me.Balance)
	assert.Equal(t, "50", me.InitialBalance)
}

func TestTransferErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	aliceToken, aliceAccount := srv.signUp(t, "alice", "100")
	_, bobAccount := srv.signUp(t, "bob", "50")

	tests := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"insufficient balance", gin.H{"recipient_account_id": bobAccount, "amount": "150"}, http.StatusUnprocessableEntity},
		{"self transfer", gin.H{"recipient_account_id": aliceAccount, "amount": "10"}, http.StatusBadRequest},
		{"zero amount", gin.H{"recipient_account_id": bobAccount, "amount": "0"}, http.StatusBadRequest},
		{"negative amount", gin.H{"recipient_account_id": bobAccount, "amount": "-5"}, http.StatusBadRequest},
		{"unknown recipient", gin.H{"recipient_account_id": 9999, "amount": "10"}, http.StatusNotFound},
		{"malformed amount", gin.H{"recipient_account_id": bobAccount, "amount": "ten"}, http.StatusBadRequest},
		{"missing recipient", gin.H{"amount": "10"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/transfers", aliceToken, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := srv.do(t, http.MethodGet, "/api/accounts/me", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "100", me.Balance)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/accounts/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/transfers", "not-a-token", gin.H{"recipient_account_id": 1, "amount": "1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_StoreFailureIsServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	store := memory.NewStore()

	handler := NewHandler(
		service.NewUserService(store.Users()),
		service.NewAccountService(store.Accounts()),
		nil,
		tokens,
		stubResolver{err: fmt.Errorf("resolve caller: %w", domain.ErrStore)},
		nil,
	)
	router := gin.New()
	handler.RegisterRoutes(router)
	srv := &testServer{router: router}

	rec := srv.do(t, http.MethodGet, "/api/accounts/me", "any-token", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
}

func TestRegisterAndLoginErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.signUp(t, "carol", "10")

	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "carol", "password": "long-enough-password", "initial_balance": "10",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "dave", "password": "long-enough-password", "initial_balance": "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "carol", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSnapshots(t *testing.T) {
	modified := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	srv := newTestServer(t, stubSnapshots{objects: []storage.ObjectInfo{
		{Key: "snapshots/a.json", Size: 42, LastModified: &modified},
	}})
	token, _ := srv.signUp(t, "erin", "10")

	rec := srv.do(t, http.MethodGet, "/api/snapshots", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []StorageObjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "snapshots/a.json", resp[0].Key)
	require.NotNil(t, resp[0].LastModified)
	assert.Equal(t, "2026-10-19T08:00:00Z", *resp[0].LastModified)

	unconfigured := newTestServer(t, nil)
	token, _ = unconfigured.signUp(t, "erin", "10")
	rec = unconfigured.do(t, http.MethodGet, "/api/snapshots", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrInvalidOperation, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{domain.ErrBusy, http.StatusServiceUnavailable},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrStore, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
