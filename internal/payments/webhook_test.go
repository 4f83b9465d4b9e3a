package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
)

func TestParseMTNWebhookPrimaryFields(t *testing.T) {
	event, err := ParseMTNWebhook([]byte(`{"referenceId":"ref-123","status":"SUCCESSFUL"}`))
	require.NoError(t, err)
	assert.Equal(t, "ref-123", event.ProviderRef)
	assert.Equal(t, enums.PaymentStatusSucceeded, event.Status)
	assert.Equal(t, enums.PaymentProviderMTN, event.Provider)
}

func TestParseMTNWebhookFallsBackToExternalID(t *testing.T) {
	event, err := ParseMTNWebhook([]byte(`{"externalId":"ext-9","status":"FAILED"}`))
	require.NoError(t, err)
	assert.Equal(t, "ext-9", event.ProviderRef)
	assert.Equal(t, enums.PaymentStatusFailed, event.Status)
}

func TestParseMTNWebhookFallsBackToNestedStatus(t *testing.T) {
	event, err := ParseMTNWebhook([]byte(`{"referenceId":"ref-1","result":{"status":"SUCCESSFUL"}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSucceeded, event.Status)
}

func TestParseMTNWebhookRejectsMissingFields(t *testing.T) {
	cases := []string{
		`{}`,
		`{"referenceId":"ref-1"}`,
		`{"status":"SUCCESSFUL"}`,
		`not json`,
	}
	for _, body := range cases {
		_, err := ParseMTNWebhook([]byte(body))
		require.Error(t, err, "body: %s", body)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	}
}

func TestParseMoovWebhookPrimaryFields(t *testing.T) {
	event, err := ParseMoovWebhook([]byte(`{"referenceId":"mv-1","status":"SUCCESS"}`))
	require.NoError(t, err)
	assert.Equal(t, "mv-1", event.ProviderRef)
	assert.Equal(t, enums.PaymentStatusSucceeded, event.Status)
	assert.Equal(t, enums.PaymentProviderMoov, event.Provider)
}

func TestParseMoovWebhookFallsBackToTransactionID(t *testing.T) {
	event, err := ParseMoovWebhook([]byte(`{"transactionId":"tx-7","status":"REJECTED"}`))
	require.NoError(t, err)
	assert.Equal(t, "tx-7", event.ProviderRef)
	assert.Equal(t, enums.PaymentStatusFailed, event.Status)
}

func TestParseMoovWebhookRejectsMissingFields(t *testing.T) {
	_, err := ParseMoovWebhook([]byte(`{"transactionId":"tx-7"}`))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestNormalizeProviderStatusKeepsUnknownPending(t *testing.T) {
	assert.Equal(t, enums.PaymentStatusPending, normalizeProviderStatus("PROCESSING"))
	assert.Equal(t, enums.PaymentStatusPending, normalizeProviderStatus(""))
	assert.Equal(t, enums.PaymentStatusSucceeded, normalizeProviderStatus("successful"))
	assert.Equal(t, enums.PaymentStatusFailed, normalizeProviderStatus("expired"))
}
