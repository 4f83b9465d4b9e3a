package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/api/middleware"
	"github.com/afribook/afribook-backend/api/responses"
	"github.com/afribook/afribook-backend/api/validators"
	"github.com/afribook/afribook-backend/internal/subscriptions"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
)

// SubscriptionCreate charges the plan price and opens a subscription.
func SubscriptionCreate(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		var payload subscribeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider"))
			return
		}

		subscription, err := svc.Subscribe(r.Context(), subscriptions.SubscribeInput{
			UserID:   userID,
			Plan:     payload.Plan,
			Provider: provider,
			Phone:    payload.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSubscriptionResponse(subscription))
	}
}

// SubscriptionList returns the caller's subscription history.
func SubscriptionList(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		list, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]subscriptionResponse, 0, len(list))
		for i := range list {
			out = append(out, newSubscriptionResponse(&list[i]))
		}
		responses.WriteSuccess(w, map[string]any{"subscriptions": out})
	}
}

// SubscriptionCancel cancels an active or pending subscription.
func SubscriptionCancel(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		subscriptionID, err := validators.ParsePathUUID(chi.URLParam(r, "subscriptionId"), "subscriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscription, err := svc.Cancel(r.Context(), subscriptionID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(subscription))
	}
}

type subscribeRequest struct {
	Plan     string `json:"plan" validate:"required,oneof=monthly yearly"`
	Provider string `json:"provider" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
}

type subscriptionResponse struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	Plan        string     `json:"plan"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

func newSubscriptionResponse(s *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:          s.ID,
		Status:      string(s.Status),
		Plan:        s.Plan,
		Amount:      s.Amount,
		Currency:    string(s.Currency),
		PeriodStart: s.PeriodStart,
		PeriodEnd:   s.PeriodEnd,
	}
}
