package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ledger-service/internal/auth"
	"ledger-service/internal/domain"
	"ledger-service/internal/ledger"
	"ledger-service/internal/service"
	"ledger-service/internal/storage"
)

// SnapshotLister lists archived balance snapshots.
type SnapshotLister interface {
	List(ctx context.Context) ([]storage.ObjectInfo, error)
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users     service.UserService
	accounts  service.AccountService
	engine    ledger.Engine
	tokens    *auth.Tokens
	resolver  auth.Resolver
	snapshots SnapshotLister
}

// NewHandler builds the API handler. snapshots may be nil when no archive is configured.
func NewHandler(users service.UserService, accounts service.AccountService, engine ledger.Engine, tokens *auth.Tokens, resolver auth.Resolver, snapshots SnapshotLister) *Handler {
	return &Handler{
		users:     users,
		accounts:  accounts,
		engine:    engine,
		tokens:    tokens,
		resolver:  resolver,
		snapshots: snapshots,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)

		secured := api.Group("")
		secured.Use(h.authMiddleware())
		secured.GET("/accounts/me", h.me)
		secured.POST("/transfers", h.transfer)
		secured.GET("/snapshots", h.listSnapshots)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type transferRequest struct {
	RecipientAccountID int64           `json:"recipient_account_id" binding:"required"`
	Amount             decimal.Decimal `json:"amount"`
}

func (h *Handler) me(c *gin.Context) {
	accountID, _ := auth.AccountIDFromContext(c.Request.Context())
	account, err := h.accounts.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, accountToResponse(account))
}

func (h *Handler) transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callerID, _ := auth.AccountIDFromContext(c.Request.Context())
	receipt, err := h.engine.Transfer(c.Request.Context(), callerID, req.RecipientAccountID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptToResponse(receipt))
}

func (h *Handler) listSnapshots(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot archive not configured"})
		return
	}

	objects, err := h.snapshots.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

// statusFor maps domain failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

type AccountResponse struct {
	ID             int64  `json:"id"`
	Balance        string `json:"balance"`
	InitialBalance string `json:"initial_balance"`
	UpdatedAt      string `json:"updated_at"`
}

type ReceiptResponse struct {
	ID               string `json:"id"`
	From             int64  `json:"from"`
	To               int64  `json:"to"`
	Amount           string `json:"amount"`
	SenderBalance    string `json:"sender_balance"`
	RecipientBalance string `json:"recipient_balance"`
	CompletedAt      string `json:"completed_at"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func accountToResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		ID:             account.ID,
		Balance:        account.Balance.String(),
		InitialBalance: account.InitialBalance.String(),
		UpdatedAt:      account.UpdatedAt.Format(time.RFC3339),
	}
}

func receiptToResponse(receipt *ledger.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:               receipt.ID.String(),
		From:             receipt.From,
		To:               receipt.To,
		Amount:           receipt.Amount.String(),
		SenderBalance:    receipt.SenderBalance.String(),
		RecipientBalance: receipt.RecipientBalance.String(),
		CompletedAt:      receipt.CompletedAt.Format(time.RFC3339),
	}
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
