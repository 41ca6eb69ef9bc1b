package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/inkstudio/internal/middleware"
	"github.com/hitoshi/inkstudio/internal/model"
)

// InkServiceInterface はインクハンドラーが必要とするサービスインターフェース。
type InkServiceInterface interface {
	GetBalance(ctx context.Context, userID string) (*model.InkBalance, error)
	Deduct(ctx context.Context, userID string, amount int, reason string) (*model.InkDeduction, error)
}

// InkHandler はインク残高のHTTPハンドラー。
type InkHandler struct {
	service InkServiceInterface
}

// NewInkHandler はInkHandlerを生成する。
func NewInkHandler(service InkServiceInterface) *InkHandler {
	return &InkHandler{service: service}
}

// amountは0以下も受け付け、サービス層でINVALID_AMOUNTとして拒否する。
type deductRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason" validate:"max=1000"`
}

type deductResponse struct {
	Success    bool `json:"success"`
	NewBalance int  `json:"newBalance"`
	Deducted   int  `json:"deducted"`
}

// Balance は残高を返す。
// GET /api/ink/balance
func (h *InkHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

// Deduct は残高からインクを消費する。
// POST /api/ink/deduct
func (h *InkHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req deductRequest
	if apiErr := decodeAndValidate(r.Body, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.Deduct(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deductResponse{
		Success:    true,
		NewBalance: result.NewBalance,
		Deducted:   result.Deducted,
	})
}
