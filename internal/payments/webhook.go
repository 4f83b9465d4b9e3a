package payments

import (
	"encoding/json"
	"strings"

	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
)

// WebhookEvent is the normalized form of a provider callback.
type WebhookEvent struct {
	Provider    enums.PaymentProvider
	ProviderRef string
	Status      enums.PaymentStatus
	Raw         map[string]any
}

// ParseMTNWebhook extracts the reference and status from an MTN MoMo callback.
// MTN sends referenceId on collection callbacks and externalId on some
// disbursement ones; status may also arrive nested under result.status.
func ParseMTNWebhook(body []byte) (*WebhookEvent, error) {
	raw, err := decodeWebhookBody(body)
	if err != nil {
		return nil, err
	}

	ref := stringField(raw, "referenceId")
	if ref == "" {
		ref = stringField(raw, "externalId")
	}

	status := stringField(raw, "status")
	if status == "" {
		if result, ok := raw["result"].(map[string]any); ok {
			status = stringField(result, "status")
		}
	}

	if ref == "" || status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payload").
			WithDetails(map[string]any{"missing": missingFields(ref, status)})
	}

	return &WebhookEvent{
		Provider:    enums.PaymentProviderMTN,
		ProviderRef: ref,
		Status:      normalizeProviderStatus(status),
		Raw:         raw,
	}, nil
}

// ParseMoovWebhook extracts the reference and status from a Moov Money
// callback. Moov uses referenceId or transactionId depending on the flow.
func ParseMoovWebhook(body []byte) (*WebhookEvent, error) {
	raw, err := decodeWebhookBody(body)
	if err != nil {
		return nil, err
	}

	ref := stringField(raw, "referenceId")
	if ref == "" {
		ref = stringField(raw, "transactionId")
	}
	status := stringField(raw, "status")

	if ref == "" || status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payload").
			WithDetails(map[string]any{"missing": missingFields(ref, status)})
	}

	return &WebhookEvent{
		Provider:    enums.PaymentProviderMoov,
		ProviderRef: ref,
		Status:      normalizeProviderStatus(status),
		Raw:         raw,
	}, nil
}

func decodeWebhookBody(body []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payload")
	}
	return raw, nil
}

func stringField(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func missingFields(ref, status string) []string {
	var missing []string
	if ref == "" {
		missing = append(missing, "referenceId")
	}
	if status == "" {
		missing = append(missing, "status")
	}
	return missing
}
