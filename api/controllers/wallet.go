package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/api/middleware"
	"github.com/afribook/afribook-backend/api/responses"
	"github.com/afribook/afribook-backend/api/validators"
	"github.com/afribook/afribook-backend/internal/wallet"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/pagination"
)

// WalletFetch returns the caller's wallet, creating it on first access.
func WalletFetch(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		userWallet, err := svc.GetOrCreate(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWalletResponse(userWallet))
	}
}

// WalletTransactions lists the caller's ledger, newest first.
func WalletTransactions(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListTransactions(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]transactionResponse, 0, len(list))
		for i := range list {
			out = append(out, newTransactionResponse(&list[i]))
		}
		responses.WriteSuccess(w, map[string]any{"transactions": out})
	}
}

// WalletDeposit starts a mobile-money deposit into the caller's wallet. The
// balance moves only when the provider confirms the charge.
func WalletDeposit(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		var payload transferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider"))
			return
		}

		transaction, err := svc.InitiateDeposit(r.Context(), wallet.DepositInput{
			UserID:   userID,
			Amount:   payload.Amount,
			Provider: provider,
			Phone:    payload.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, newTransactionResponse(transaction))
	}
}

// WalletWithdraw starts a mobile-money withdrawal. Funds are checked up
// front but debited only when the payout reconciles.
func WalletWithdraw(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		var payload transferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider"))
			return
		}

		transaction, err := svc.InitiateWithdrawal(r.Context(), wallet.WithdrawalInput{
			UserID:   userID,
			Amount:   payload.Amount,
			Provider: provider,
			Phone:    payload.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, newTransactionResponse(transaction))
	}
}

type transferRequest struct {
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Provider string `json:"provider" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
}

type walletResponse struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Balance  int64     `json:"balance"`
	Currency string    `json:"currency"`
}

func newWalletResponse(w *models.Wallet) walletResponse {
	return walletResponse{
		ID:       w.ID,
		UserID:   w.UserID,
		Balance:  w.Balance,
		Currency: string(w.Currency),
	}
}

type transactionResponse struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Amount      int64      `json:"amount"`
	Fee         int64      `json:"fee"`
	NetAmount   int64      `json:"net_amount"`
	Currency    string     `json:"currency"`
	Provider    string     `json:"provider"`
	ProviderRef *string    `json:"provider_ref,omitempty"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newTransactionResponse(t *models.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Amount:      t.Amount,
		Fee:         t.Fee,
		NetAmount:   t.NetAmount,
		Currency:    string(t.Currency),
		Provider:    string(t.Provider),
		ProviderRef: t.ProviderRef,
		OrderID:     t.OrderID,
		CompletedAt: t.CompletedAt,
		FailedAt:    t.FailedAt,
		CreatedAt:   t.CreatedAt,
	}
}
