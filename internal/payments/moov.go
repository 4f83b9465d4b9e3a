package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/config"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
)

// MoovClient integrates the Moov Money merchant push/pull API.
type MoovClient struct {
	baseURL    string
	merchantID string
	apiToken   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewMoovClient validates the credentials and returns a Moov Money gateway.
func NewMoovClient(cfg config.MoovConfig, logg *logger.Logger) (*MoovClient, error) {
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return nil, fmt.Errorf("moov merchant id is required")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, fmt.Errorf("moov api token is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("moov logger is required")
	}
	return &MoovClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		merchantID: cfg.MerchantID,
		apiToken:   cfg.APIToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logg,
	}, nil
}

func (c *MoovClient) Provider() enums.PaymentProvider {
	return enums.PaymentProviderMoov
}

type moovTransferRequest struct {
	MerchantID string `json:"merchantId"`
	Reference  string `json:"referenceId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Subscriber string `json:"subscriberMsisdn"`
	Message    string `json:"message,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
}

type moovTransferResponse struct {
	ReferenceID   string `json:"referenceId"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Description   string `json:"description,omitempty"`
}

// Charge initiates a pull payment (push USSD prompt to the subscriber).
func (c *MoovClient) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	return c.send(ctx, "/api/v1/transactions/push", moovTransferRequest{
		MerchantID: c.merchantID,
		Reference:  uuid.NewString(),
		Amount:     req.Amount,
		Currency:   req.Currency.String(),
		Subscriber: req.PayerPhone,
		Message:    req.Description,
		ExternalID: req.ExternalRef,
	})
}

// Payout initiates a merchant-to-subscriber transfer.
func (c *MoovClient) Payout(ctx context.Context, req PayoutRequest) (*Result, error) {
	return c.send(ctx, "/api/v1/transactions/transfer", moovTransferRequest{
		MerchantID: c.merchantID,
		Reference:  uuid.NewString(),
		Amount:     req.Amount,
		Currency:   req.Currency.String(),
		Subscriber: req.PayeePhone,
		Message:    req.Description,
		ExternalID: req.ExternalRef,
	})
}

func (c *MoovClient) send(ctx context.Context, path string, body moovTransferRequest) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal moov request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build moov request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "moov call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed,
			fmt.Sprintf("moov returned status %d", resp.StatusCode))
	}

	var decoded moovTransferResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "decode moov response")
	}

	providerRef := decoded.ReferenceID
	if providerRef == "" {
		providerRef = decoded.TransactionID
	}
	if providerRef == "" {
		providerRef = body.Reference
	}
	return &Result{
		ProviderRef: providerRef,
		Status:      normalizeProviderStatus(decoded.Status),
	}, nil
}
