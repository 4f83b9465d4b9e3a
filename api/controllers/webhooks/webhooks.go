// Package webhooks exposes the mobile-money callback endpoints. Providers
// expect a flat acknowledgement body, so these handlers bypass the standard
// response envelope.
package webhooks

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/afribook/afribook-backend/internal/payments"
	webhooksvc "github.com/afribook/afribook-backend/internal/webhooks"
	"github.com/afribook/afribook-backend/pkg/logger"
)

type parseFunc func(body []byte) (*payments.WebhookEvent, error)

// MTNWebhook handles MTN MoMo payment callbacks.
func MTNWebhook(svc webhooksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handleWebhook(svc, logg, payments.ParseMTNWebhook)
}

// MoovWebhook handles Moov Money payment callbacks.
func MoovWebhook(svc webhooksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handleWebhook(svc, logg, payments.ParseMoovWebhook)
}

func handleWebhook(svc webhooksvc.Service, logg *logger.Logger, parse parseFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			writeWebhookError(w, http.StatusInternalServerError, "webhook service unavailable")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeWebhookError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		event, err := parse(body)
		if err != nil {
			if logg != nil {
				logg.Warn(ctx, "webhook payload rejected")
			}
			writeWebhookError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			// The provider will retry; respond with a server error so the
			// event is not lost.
			if logg != nil {
				logg.Error(ctx, "webhook processing failed", err)
			}
			writeWebhookError(w, http.StatusInternalServerError, "processing failed")
			return
		}

		writeWebhookJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func writeWebhookError(w http.ResponseWriter, status int, message string) {
	writeWebhookJSON(w, status, map[string]string{"error": message})
}

func writeWebhookJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
