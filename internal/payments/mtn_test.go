package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afribook/afribook-backend/pkg/config"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
)

func newMTNTestClient(t *testing.T, baseURL string) *MTNClient {
	t.Helper()
	client, err := NewMTNClient(config.MTNConfig{
		BaseURL:         baseURL,
		SubscriptionKey: "sub-key",
		APIUser:         "api-user",
		APIKey:          "api-key",
		TargetEnv:       "sandbox",
		Timeout:         2 * time.Second,
	}, logger.New(logger.Options{ServiceName: "payments-test"}))
	require.NoError(t, err)
	return client
}

func TestMTNChargeSuccessfulFlow(t *testing.T) {
	var capturedRef string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/collection/token/"):
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "api-user", user)
			assert.Equal(t, "api-key", pass)
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1"})

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/collection/v1_0/requesttopay"):
			capturedRef = r.Header.Get("X-Reference-Id")
			assert.NotEmpty(t, capturedRef)
			assert.Equal(t, "sub-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
			assert.Equal(t, "sandbox", r.Header.Get("X-Target-Environment"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "11500", body["amount"])
			assert.Equal(t, "XOF", body["currency"])
			w.WriteHeader(http.StatusAccepted)

		case r.Method == http.MethodGet:
			assert.True(t, strings.HasSuffix(r.URL.Path, "/collection/v1_0/requesttopay/"+capturedRef))
			json.NewEncoder(w).Encode(map[string]any{"status": "SUCCESSFUL"})

		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	client := newMTNTestClient(t, srv.URL)

	result, err := client.Charge(context.Background(), ChargeRequest{
		Amount:      11500,
		Currency:    enums.CurrencyXOF,
		PayerPhone:  "22997000001",
		ExternalRef: "AB-2025-0001",
	})
	require.NoError(t, err)
	assert.Equal(t, capturedRef, result.ProviderRef)
	assert.Equal(t, enums.PaymentStatusSucceeded, result.Status)
}

func TestMTNChargeReportsPendingWhenStatusPollFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/collection/token/"):
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1"})
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := newMTNTestClient(t, srv.URL)

	result, err := client.Charge(context.Background(), ChargeRequest{
		Amount:     5000,
		Currency:   enums.CurrencyXOF,
		PayerPhone: "22997000002",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ProviderRef)
	assert.Equal(t, enums.PaymentStatusPending, result.Status)
}

func TestMTNChargeFailsOnRejectedInitiation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/collection/token/") {
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1"})
			return
		}
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := newMTNTestClient(t, srv.URL)

	_, err := client.Charge(context.Background(), ChargeRequest{
		Amount:     5000,
		Currency:   enums.CurrencyXOF,
		PayerPhone: "22997000003",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentFailed))
}

func TestMoovChargeUsesTransactionIDFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer moov-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"transactionId": "mv-tx-1",
			"status":        "SUCCESS",
		})
	}))
	defer srv.Close()

	client, err := NewMoovClient(config.MoovConfig{
		BaseURL:    srv.URL,
		MerchantID: "merchant-1",
		APIToken:   "moov-token",
		Timeout:    2 * time.Second,
	}, logger.New(logger.Options{ServiceName: "payments-test"}))
	require.NoError(t, err)

	result, err := client.Charge(context.Background(), ChargeRequest{
		Amount:     4500,
		Currency:   enums.CurrencyXOF,
		PayerPhone: "22996000001",
	})
	require.NoError(t, err)
	assert.Equal(t, "mv-tx-1", result.ProviderRef)
	assert.Equal(t, enums.PaymentStatusSucceeded, result.Status)
}
